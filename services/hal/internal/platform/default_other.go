//go:build !rp2040 && !(linux && !tinygo)

package platform

import (
	"envmon-go/services/hal/halsim"
	"envmon-go/services/hal/internal/core"
)

// DefaultRegistry falls back to the in-memory simulator.
func DefaultRegistry() (core.ResourceRegistry, error) {
	return halsim.NewRegistry(), nil
}
