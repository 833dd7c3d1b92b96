package gpio_dout

import (
	"context"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
	"envmon-go/x/timex"
)

// Device is a single GPIO-driven LED with an optional inverted output.
type Device struct {
	id        string
	pin       core.GPIOHandle
	pinN      int
	activeLow bool
	initial   bool
	reg       core.ResourceRegistry
	pub       core.EventEmitter
	addr      core.CapAddr
}

func New(id string, p types.LEDParams, h core.GPIOHandle, res core.Resources) *Device {
	d := &Device{
		id:        id,
		pin:       h,
		pinN:      p.Pin,
		activeLow: p.ActiveLow,
		initial:   p.Initial,
		reg:       res.Reg,
		pub:       res.Pub,
	}
	domain, name := p.Domain, p.Name
	if domain == "" {
		domain = "io"
	}
	if name == "" {
		name = id
	}
	d.addr = core.CapAddr{Domain: domain, Kind: string(types.KindLED), Name: name}
	return d
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.addr.Domain,
		Kind:   types.KindLED,
		Name:   d.addr.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "gpio_dout",
			Detail:        types.LEDInfo{Pin: d.pinN},
		},
	}}
}

func (d *Device) Init(ctx context.Context) error {
	if err := d.pin.ConfigureOutput(d.physical(d.initial)); err != nil {
		return err
	}
	d.emitValueNow()
	return nil
}

func (d *Device) Close() error {
	if d.reg != nil {
		d.reg.ReleasePin(d.id, d.pinN)
	}
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, payload any) (core.EnqueueResult, error) {
	switch verb {
	case "set":
		p, code := core.As[types.LEDSet](payload)
		if code != "" || payload == nil {
			return core.EnqueueResult{OK: false, Error: errcode.InvalidPayload}, nil
		}
		d.pin.Set(d.physical(p.On))
	case "toggle":
		d.pin.Toggle()
	case "read":
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
	d.emitValueNow()
	return core.EnqueueResult{OK: true}, nil
}

// physical maps a logical on/off to the pin level.
func (d *Device) physical(on bool) bool { return on != d.activeLow }

func (d *Device) emitValueNow() {
	_ = d.pub.Emit(core.Event{
		Addr:    d.addr,
		Payload: types.LEDValue{On: d.physical(d.pin.Get())},
		TSms:    timex.NowMs(),
	})
}
