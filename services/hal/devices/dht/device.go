package dhtdev

import (
	"context"
	"time"

	"envmon-go/drivers/dht"
	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
	"envmon-go/x/mathx"
	"envmon-go/x/timex"

	"tinygo.org/x/drivers"
)

// Device owns one DHT sensor. All line access happens on its reader
// goroutine; Control only queues a request.
type Device struct {
	id      string
	pin     int
	variant dht.Variant
	domain  string
	name    string

	reg core.ResourceRegistry
	pub core.EventEmitter

	drv         dht.Device
	atomic      func(func())
	minInterval time.Duration

	reqCh  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	lastStart time.Time

	addrTemp core.CapAddr
	addrHum  core.CapAddr
}

func (d *Device) ID() string { return d.id }

func (d *Device) Capabilities() []core.CapabilitySpec {
	sensor := d.variant.String()
	return []core.CapabilitySpec{
		{
			Domain: d.domain,
			Kind:   types.KindTemperature,
			Name:   d.name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht",
				Detail: types.TemperatureInfo{Sensor: sensor, Pin: d.pin},
			},
		},
		{
			Domain: d.domain,
			Kind:   types.KindHumidity,
			Name:   d.name,
			Info: types.Info{
				SchemaVersion: 1, Driver: "dht",
				Detail: types.HumidityInfo{Sensor: sensor, Pin: d.pin},
			},
		},
	}
}

func (d *Device) Init(ctx context.Context) error {
	d.addrTemp = core.CapAddr{Domain: d.domain, Kind: string(types.KindTemperature), Name: d.name}
	d.addrHum = core.CapAddr{Domain: d.domain, Kind: string(types.KindHumidity), Name: d.name}

	// The sensor also needs its quiescent time after power-up.
	d.lastStart = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(runCtx)
	return nil
}

func (d *Device) Close() error {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
	}
	if d.reg != nil {
		d.reg.ReleasePin(d.id, d.pin)
	}
	return nil
}

func (d *Device) Control(_ core.CapAddr, verb string, _ any) (core.EnqueueResult, error) {
	switch verb {
	case core.VerbRead:
		select {
		case d.reqCh <- struct{}{}:
			return core.EnqueueResult{OK: true}, nil
		default:
			return core.EnqueueResult{OK: false, Error: errcode.Busy}, nil
		}
	default:
		return core.EnqueueResult{OK: false, Error: errcode.Unsupported}, nil
	}
}

func (d *Device) loop(ctx context.Context) {
	defer close(d.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.reqCh:
		}
		if wait := time.Until(d.lastStart.Add(d.minInterval)); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		d.lastStart = time.Now()
		d.readOnce()
	}
}

func (d *Device) readOnce() {
	var err error
	update := func() { err = d.drv.Update(drivers.Temperature | drivers.Humidity) }
	if d.atomic != nil {
		d.atomic(update)
	} else {
		update()
	}
	ts := timex.NowMs()
	if err != nil {
		code := errcode.MapDriverErr(err)
		println("[dht]", d.id, "read failed:", string(code))
		d.emitErr(string(code), ts)
		return
	}

	decic := d.drv.DeciCelsius()
	deciRH := d.drv.DeciRelHumidity()
	if !plausible(d.variant, decic, deciRH) {
		println("[dht]", d.id, "implausible sample dropped")
		d.emitErr(string(errcode.InvalidSample), ts)
		return
	}

	rhx100 := mathx.Clamp(int32(deciRH)*10, 0, 10000)
	okT := d.pub.Emit(core.Event{Addr: d.addrTemp, Payload: types.TemperatureValue{DeciC: decic}, TSms: ts})
	okH := d.pub.Emit(core.Event{Addr: d.addrHum, Payload: types.HumidityValue{RHx100: uint16(rhx100)}, TSms: ts})
	if !okT || !okH {
		println("[dht]", d.id, "event dropped")
	}
}

func (d *Device) emitErr(code string, ts int64) {
	d.pub.Emit(core.Event{Addr: d.addrTemp, Err: code, TSms: ts})
	d.pub.Emit(core.Event{Addr: d.addrHum, Err: code, TSms: ts})
}

// plausible rejects frames that pass the checksum but lie outside what the
// part can measure. Tenths of a unit.
func plausible(v dht.Variant, decic, deciRH int16) bool {
	if !mathx.Between(deciRH, 0, 1000) {
		return false
	}
	if v == dht.Variant11 {
		return mathx.Between(decic, 0, 600)
	}
	return mathx.Between(decic, -400, 800)
}
