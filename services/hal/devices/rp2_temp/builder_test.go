package rp2_temp

import (
	"context"
	"testing"

	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
	"envmon-go/types"
)

type dieReg struct{ milliC int32 }

func (dieReg) ClaimPin(string, int, core.PinFunc) (core.PinHandle, error) {
	return nil, errcode.UnknownPin
}
func (dieReg) ReleasePin(string, int)   {}
func (r dieReg) ReadOnDieMilliC() int32 { return r.milliC }

type plainReg struct{ dieReg }

// plainReg hides ReadOnDieMilliC.
func (plainReg) ReadOnDieMilliC() {}

type lastEmitter struct{ ev core.Event }

func (l *lastEmitter) Emit(ev core.Event) bool { l.ev = ev; return true }

func TestDieTemperature(t *testing.T) {
	em := &lastEmitter{}
	dev, err := builder{}.Build(context.Background(), core.BuilderInput{
		ID: "mcu", Params: types.DieTempParams{}, Res: core.Resources{Reg: dieReg{milliC: 27_450}, Pub: em},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res, _ := dev.Control(core.CapAddr{}, "read", nil); !res.OK {
		t.Fatalf("read: %+v", res)
	}
	v, ok := em.ev.Payload.(types.TemperatureValue)
	if !ok || v.DeciC != 274 {
		t.Fatalf("payload = %#v", em.ev.Payload)
	}
	if em.ev.Addr != (core.CapAddr{Domain: "board", Kind: "temperature", Name: "mcu"}) {
		t.Fatalf("addr = %+v", em.ev.Addr)
	}
}

func TestDieTemperatureOutOfRange(t *testing.T) {
	em := &lastEmitter{}
	dev, _ := builder{}.Build(context.Background(), core.BuilderInput{
		ID: "mcu", Params: types.DieTempParams{}, Res: core.Resources{Reg: dieReg{milliC: 200_000}, Pub: em},
	})
	dev.Control(core.CapAddr{}, "read", nil)
	if em.ev.Err != string(errcode.InvalidSample) {
		t.Fatalf("err = %q", em.ev.Err)
	}
}

func TestDieTemperatureUnsupported(t *testing.T) {
	_, err := builder{}.Build(context.Background(), core.BuilderInput{
		ID: "mcu", Params: types.DieTempParams{}, Res: core.Resources{Reg: plainReg{}, Pub: &lastEmitter{}},
	})
	if err != errcode.Unsupported {
		t.Fatalf("err = %v", err)
	}
}
