// services/hal/devices/dht/builder.go
package dhtdev

import (
	"context"
	"time"

	"envmon-go/drivers/dht"
	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
)

func init() { core.RegisterBuilder("dht", builder{}) }

type builder struct{}

// Optional provider features, detected on the pin handle or the registry.
type (
	// lineProvider: the pin is natively a single-wire line (e.g. simulator).
	lineProvider interface{ Line() dht.Line }
	// criticalSection: run fn with interrupts masked.
	criticalSection interface{ Atomic(fn func()) }
)

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.DHTParams](in.Params)
	if code != "" {
		return nil, code
	}
	v, err := dht.ParseVariant(p.Variant)
	if err != nil {
		return nil, errcode.InvalidParams
	}
	ph, err := in.Res.Reg.ClaimPin(in.ID, p.Pin, core.FuncSingleWire)
	if err != nil {
		return nil, err
	}

	d := &Device{
		id:      in.ID,
		pin:     p.Pin,
		variant: v,
		domain:  p.Domain,
		name:    p.Name,
		reg:     in.Res.Reg,
		pub:     in.Res.Pub,
		reqCh:   make(chan struct{}, 1),
	}
	if d.domain == "" {
		d.domain = "env"
	}
	if d.name == "" {
		d.name = in.ID
	}
	d.minInterval = v.MinInterval()
	if p.MinIntervalMs > 0 {
		d.minInterval = time.Duration(p.MinIntervalMs) * time.Millisecond
	}
	if cs, ok := in.Res.Reg.(criticalSection); ok {
		d.atomic = cs.Atomic
	}

	d.drv = dht.New(lineFor(ph), v)
	d.drv.Configure(dht.Config{BitThreshold: p.BitThreshold})
	return d, nil
}

// lineFor picks the best available line: a native one, else the GPIO
// handle driven with the clock spin.
func lineFor(ph core.PinHandle) dht.Line {
	if lp, ok := ph.(lineProvider); ok {
		if l := lp.Line(); l != nil {
			return l
		}
	}
	return &gpioLine{pin: ph.AsGPIO(), delay: dht.BusyWait}
}

// gpioLine drives a DHT data pin through a HAL GPIO handle. The bus idles
// high on the pull-up while the pin is an input.
type gpioLine struct {
	pin   core.GPIOHandle
	delay func(us uint32)
}

func (l *gpioLine) SetDirection(dir dht.Direction) {
	if dir == dht.Output {
		_ = l.pin.ConfigureOutput(true)
		return
	}
	_ = l.pin.ConfigureInput(core.PullUp)
}

func (l *gpioLine) Set(level bool)              { l.pin.Set(level) }
func (l *gpioLine) Get() bool                   { return l.pin.Get() }
func (l *gpioLine) DelayMicroseconds(us uint32) { l.delay(us) }
