//go:build linux && !tinygo

package platform

import (
	"envmon-go/services/hal/internal/core"
	"envmon-go/services/hal/internal/provider"
)

// DefaultRegistry returns the periph-backed GPIO provider.
func DefaultRegistry() (core.ResourceRegistry, error) {
	return provider.NewPeriphRegistry()
}
