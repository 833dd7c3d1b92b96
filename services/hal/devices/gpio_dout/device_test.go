package gpio_dout

import (
	"context"
	"testing"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
)

type fakeGPIO struct {
	n     int
	level bool
	out   bool
}

func (g *fakeGPIO) Number() int                        { return g.n }
func (g *fakeGPIO) ConfigureInput(core.Pull) error     { g.out = false; return nil }
func (g *fakeGPIO) ConfigureOutput(initial bool) error { g.out = true; g.level = initial; return nil }
func (g *fakeGPIO) Set(b bool)                         { g.level = b }
func (g *fakeGPIO) Get() bool                          { return g.level }
func (g *fakeGPIO) Toggle()                            { g.level = !g.level }

type sliceEmitter struct{ evs []core.Event }

func (s *sliceEmitter) Emit(ev core.Event) bool { s.evs = append(s.evs, ev); return true }

func (s *sliceEmitter) lastOn(t *testing.T) bool {
	t.Helper()
	if len(s.evs) == 0 {
		t.Fatal("no events")
	}
	v, ok := s.evs[len(s.evs)-1].Payload.(types.LEDValue)
	if !ok {
		t.Fatalf("payload %T", s.evs[len(s.evs)-1].Payload)
	}
	return v.On
}

func TestLEDActiveLow(t *testing.T) {
	g := &fakeGPIO{n: 25}
	em := &sliceEmitter{}
	d := New("status", types.LEDParams{Pin: 25, ActiveLow: true}, g, core.Resources{Pub: em})

	if err := d.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !g.level || em.lastOn(t) {
		t.Fatalf("initial off must drive the pin high: level=%v", g.level)
	}

	if res, _ := d.Control(d.addr, "set", types.LEDSet{On: true}); !res.OK {
		t.Fatalf("set: %+v", res)
	}
	if g.level || !em.lastOn(t) {
		t.Fatalf("on must drive low: level=%v", g.level)
	}

	d.Control(d.addr, "toggle", nil)
	if em.lastOn(t) {
		t.Fatal("toggle did not switch off")
	}
}

func TestLEDControlErrors(t *testing.T) {
	d := New("status", types.LEDParams{Pin: 2}, &fakeGPIO{n: 2}, core.Resources{Pub: &sliceEmitter{}})
	if res, _ := d.Control(d.addr, "set", "on"); res.Error != errcode.InvalidPayload {
		t.Fatalf("set with string: %+v", res)
	}
	if res, _ := d.Control(d.addr, "set", nil); res.Error != errcode.InvalidPayload {
		t.Fatalf("set with nil: %+v", res)
	}
	if res, _ := d.Control(d.addr, "blink", nil); res.Error != errcode.Unsupported {
		t.Fatalf("blink: %+v", res)
	}
	if d.addr != (core.CapAddr{Domain: "io", Kind: "led", Name: "status"}) {
		t.Fatalf("addr = %+v", d.addr)
	}
}
