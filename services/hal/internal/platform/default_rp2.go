//go:build rp2040

package platform

import (
	"envmon-go/services/hal/internal/core"
	"envmon-go/services/hal/internal/provider"
)

// DefaultRegistry returns the board's pin provider.
func DefaultRegistry() (core.ResourceRegistry, error) {
	return provider.NewResourceRegistry(), nil
}
