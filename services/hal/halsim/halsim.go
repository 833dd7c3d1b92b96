// Package halsim is an in-memory pin provider for the HAL. Pins are plain
// latches unless a simulated single-wire device is attached, in which case
// the dht device drives the attached line directly.
package halsim

import (
	"sync"
	"sync/atomic"

	"envmon-go/drivers/dht"
	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
)

// MaxPin is the highest pin number the simulator accepts.
const MaxPin = 40

type Registry struct {
	mu    sync.Mutex
	pins  map[int]*Pin
	used  map[int]string
	dieMC atomic.Int32
}

func NewRegistry() *Registry {
	r := &Registry{pins: map[int]*Pin{}, used: map[int]string{}}
	r.dieMC.Store(25_000)
	return r
}

// Attach backs pin n with a simulated single-wire device.
func (r *Registry) Attach(n int, l dht.Line) {
	p := r.Pin(n)
	p.mu.Lock()
	p.line = l
	p.mu.Unlock()
}

// Pin returns the simulated pin n, creating it on first use.
func (r *Registry) Pin(n int) *Pin {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pins[n]
	if !ok {
		p = &Pin{n: n}
		r.pins[n] = p
	}
	return p
}

// Owner reports who holds pin n.
func (r *Registry) Owner(n int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.used[n]
	return id, ok
}

func (r *Registry) ClaimPin(devID string, n int, _ core.PinFunc) (core.PinHandle, error) {
	if n < 0 || n > MaxPin {
		return nil, errcode.UnknownPin
	}
	r.mu.Lock()
	if owner, inUse := r.used[n]; inUse && owner != devID {
		r.mu.Unlock()
		return nil, errcode.PinInUse
	}
	r.used[n] = devID
	r.mu.Unlock()
	return r.Pin(n), nil
}

func (r *Registry) ReleasePin(devID string, n int) {
	r.mu.Lock()
	if owner, ok := r.used[n]; ok && owner == devID {
		delete(r.used, n)
	}
	r.mu.Unlock()
}

// SetDieTemp sets the value ReadOnDieMilliC reports.
func (r *Registry) SetDieTemp(milliC int32) { r.dieMC.Store(milliC) }

func (r *Registry) ReadOnDieMilliC() int32 { return r.dieMC.Load() }

// Pin is a latch with an output flag. Inputs read back the last driven
// level, or high when nothing drove them (pull-up).
type Pin struct {
	mu     sync.Mutex
	n      int
	out    bool
	level  bool
	driven bool
	sets   int
	line   dht.Line
}

func (p *Pin) Number() int             { return p.n }
func (p *Pin) AsGPIO() core.GPIOHandle { return p }

func (p *Pin) Line() dht.Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.line
}

func (p *Pin) ConfigureInput(pull core.Pull) error {
	p.mu.Lock()
	p.out = false
	if !p.driven {
		p.level = pull != core.PullDown
	}
	p.mu.Unlock()
	return nil
}

func (p *Pin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out, p.level, p.driven = true, initial, true
	p.mu.Unlock()
	return nil
}

func (p *Pin) Set(b bool) {
	p.mu.Lock()
	p.level, p.driven = b, true
	p.sets++
	p.mu.Unlock()
}

func (p *Pin) Get() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) Toggle() {
	p.mu.Lock()
	p.level, p.driven = !p.level, true
	p.sets++
	p.mu.Unlock()
}

// Level and Output report the pin state for tests.
func (p *Pin) Level() bool { return p.Get() }

func (p *Pin) Output() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

// Sets counts Set and Toggle calls.
func (p *Pin) Sets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sets
}

var _ core.ResourceRegistry = (*Registry)(nil)
