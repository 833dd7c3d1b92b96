//go:build rp2040

package provider

import (
	"machine"
	"runtime/interrupt"
	"sync"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
)

// Ensure the provider satisfies the contracts at compile time.
var _ core.ResourceRegistry = (*rp2Registry)(nil)

const (
	gpioMin = 0
	gpioMax = 28
)

// -----------------------------------------------------------------------------
// GPIO handle
// -----------------------------------------------------------------------------

type rp2GPIO struct {
	p machine.Pin
	n int
}

func (r *rp2GPIO) Number() int { return r.n }

func (r *rp2GPIO) ConfigureInput(pull core.Pull) error {
	var mode machine.PinMode
	switch pull {
	case core.PullUp:
		mode = machine.PinInputPullup
	case core.PullDown:
		mode = machine.PinInputPulldown
	default:
		mode = machine.PinInput
	}
	r.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (r *rp2GPIO) ConfigureOutput(initial bool) error {
	r.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	r.p.Set(initial)
	return nil
}

func (r *rp2GPIO) Set(b bool) { r.p.Set(b) }
func (r *rp2GPIO) Get() bool  { return r.p.Get() }
func (r *rp2GPIO) Toggle() {
	if r.p.Get() {
		r.p.Low()
	} else {
		r.p.High()
	}
}

type rp2PinHandle struct {
	n    int
	fn   core.PinFunc
	gpio *rp2GPIO
}

func (h *rp2PinHandle) Number() int             { return h.n }
func (h *rp2PinHandle) AsGPIO() core.GPIOHandle { return h.gpio }

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

type rp2Registry struct {
	mu sync.Mutex

	pinOwners map[int]pinOwner // pin -> owner
	gpioMap   map[int]*rp2GPIO // pin -> GPIO view (cached)
}

type pinOwner struct {
	devID string
	fn    core.PinFunc
}

func NewResourceRegistry() *rp2Registry {
	// ADC backs the on-die temperature sensor.
	machine.InitADC()
	return &rp2Registry{
		pinOwners: make(map[int]pinOwner),
		gpioMap:   make(map[int]*rp2GPIO),
	}
}

func (r *rp2Registry) lookupGPIO(n int) *rp2GPIO {
	if g, ok := r.gpioMap[n]; ok {
		return g
	}
	h := &rp2GPIO{p: machine.Pin(n), n: n}
	r.gpioMap[n] = h
	return h
}

func (r *rp2Registry) ClaimPin(devID string, n int, fn core.PinFunc) (core.PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n < gpioMin || n > gpioMax {
		return nil, errcode.UnknownPin
	}
	if owner, inUse := r.pinOwners[n]; inUse && owner.devID != "" {
		return nil, errcode.PinInUse
	}
	switch fn {
	case core.FuncGPIOIn, core.FuncGPIOOut, core.FuncSingleWire:
	default:
		return nil, errcode.Unsupported
	}
	r.pinOwners[n] = pinOwner{devID: devID, fn: fn}
	return &rp2PinHandle{n: n, fn: fn, gpio: r.lookupGPIO(n)}, nil
}

func (r *rp2Registry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.pinOwners[n]; ok && owner.devID == devID {
		// Put the pin back to input.
		r.lookupGPIO(n).p.Configure(machine.PinConfig{Mode: machine.PinInput})
		delete(r.pinOwners, n)
	}
}

// ReadOnDieMilliC reads the RP2040 internal temperature sensor.
func (r *rp2Registry) ReadOnDieMilliC() int32 { return machine.ReadTemperature() }

// Atomic runs fn with interrupts masked so that timing-critical bit-banging
// is not stretched by IRQ handlers.
func (r *rp2Registry) Atomic(fn func()) {
	state := interrupt.Disable()
	fn()
	interrupt.Restore(state)
}
