package rp2_temp

import (
	"context"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
	"envmon-go/x/mathx"
	"envmon-go/x/timex"
)

func init() { core.RegisterBuilder("rp2_temp", builder{}) }

type builder struct{}

// narrow, package-local capability: implemented by providers that can read
// the MCU's on-die sensor
type dieTempReader interface {
	ReadOnDieMilliC() int32
}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, code := core.As[types.DieTempParams](in.Params)
	if code != "" {
		return nil, errcode.InvalidParams
	}
	if p.Domain == "" {
		p.Domain = "board"
	}
	if p.Name == "" {
		p.Name = in.ID
	}
	// Feature-detect: only works on providers that implement the method.
	rdr, ok := in.Res.Reg.(dieTempReader)
	if !ok {
		return nil, errcode.Unsupported
	}
	return &Device{
		id:   in.ID,
		pub:  in.Res.Pub,
		addr: core.CapAddr{Domain: p.Domain, Kind: string(types.KindTemperature), Name: p.Name},
		read: rdr.ReadOnDieMilliC,
	}, nil
}

type Device struct {
	id   string
	pub  core.EventEmitter
	addr core.CapAddr
	read func() int32 // provider-injected milli-celsius reader
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	return []core.CapabilitySpec{{
		Domain: d.addr.Domain,
		Kind:   types.KindTemperature,
		Name:   d.addr.Name,
		Info: types.Info{
			SchemaVersion: 1,
			Driver:        "rp2_temp",
			Detail:        types.TemperatureInfo{Sensor: "rp2040_internal", Pin: -1},
		},
	}}
}

func (d *Device) Init(ctx context.Context) error { return nil }

func (d *Device) Close() error { return nil }

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	if verb != "read" {
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
	// Synchronous, fast, and non-contentious: no goroutine required.
	decic := d.read() / 100
	ts := timex.NowMs()
	if !mathx.Between(decic, -400, 1250) { // −40.0..+125.0 °C
		_ = d.pub.Emit(core.Event{Addr: d.addr, Err: string(errcode.InvalidSample), TSms: ts})
		return core.EnqueueResult{OK: true}, nil
	}
	_ = d.pub.Emit(core.Event{
		Addr:    d.addr,
		Payload: types.TemperatureValue{DeciC: int16(decic)},
		TSms:    ts,
	})
	return core.EnqueueResult{OK: true}, nil
}
