//go:build linux && !tinygo

package provider

import (
	"strconv"
	"sync"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ core.ResourceRegistry = (*periphRegistry)(nil)

// periphGPIO adapts a periph pin to core.GPIOHandle. Pins are addressed by
// their BCM/SoC number ("GPIO<n>").
type periphGPIO struct {
	mu  sync.Mutex
	p   gpio.PinIO
	n   int
	out gpio.Level
}

func (g *periphGPIO) Number() int { return g.n }

func (g *periphGPIO) ConfigureInput(pull core.Pull) error {
	pp := gpio.Float
	switch pull {
	case core.PullUp:
		pp = gpio.PullUp
	case core.PullDown:
		pp = gpio.PullDown
	}
	return g.p.In(pp, gpio.NoEdge)
}

func (g *periphGPIO) ConfigureOutput(initial bool) error {
	g.mu.Lock()
	g.out = gpio.Level(initial)
	g.mu.Unlock()
	return g.p.Out(gpio.Level(initial))
}

func (g *periphGPIO) Set(b bool) {
	g.mu.Lock()
	g.out = gpio.Level(b)
	g.mu.Unlock()
	_ = g.p.Out(gpio.Level(b))
}

func (g *periphGPIO) Get() bool { return g.p.Read() == gpio.High }

func (g *periphGPIO) Toggle() {
	g.mu.Lock()
	next := !g.out
	g.mu.Unlock()
	g.Set(bool(next))
}

type periphPinHandle struct{ g *periphGPIO }

func (h periphPinHandle) Number() int             { return h.g.n }
func (h periphPinHandle) AsGPIO() core.GPIOHandle { return h.g }

type periphRegistry struct {
	mu     sync.Mutex
	owners map[int]string
	pins   map[int]*periphGPIO
}

// NewPeriphRegistry initialises the periph host drivers and returns a
// registry over the SoC's GPIO lines.
func NewPeriphRegistry() (*periphRegistry, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return &periphRegistry{owners: map[int]string{}, pins: map[int]*periphGPIO{}}, nil
}

func (r *periphRegistry) ClaimPin(devID string, n int, fn core.PinFunc) (core.PinHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, inUse := r.owners[n]; inUse && owner != devID {
		return nil, errcode.PinInUse
	}
	g, ok := r.pins[n]
	if !ok {
		p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
		if p == nil {
			return nil, errcode.UnknownPin
		}
		g = &periphGPIO{p: p, n: n}
		r.pins[n] = g
	}
	r.owners[n] = devID
	return periphPinHandle{g: g}, nil
}

func (r *periphRegistry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[n]; ok && owner == devID {
		if g := r.pins[n]; g != nil {
			_ = g.p.In(gpio.Float, gpio.NoEdge)
		}
		delete(r.owners, n)
	}
}
