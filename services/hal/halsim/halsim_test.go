package halsim

import (
	"testing"

	"envmon-go/drivers/dht"
	"envmon-go/drivers/dht/dhttest"
	"envmon-go/errcode"
	"envmon-go/services/hal/internal/core"
)

func TestClaimRelease(t *testing.T) {
	r := NewRegistry()
	if _, err := r.ClaimPin("a", 4, core.FuncGPIOOut); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ClaimPin("b", 4, core.FuncGPIOOut); err != errcode.PinInUse {
		t.Fatalf("err = %v, want pin_in_use", err)
	}
	if _, err := r.ClaimPin("a", 99, core.FuncGPIOOut); err != errcode.UnknownPin {
		t.Fatalf("err = %v, want unknown_pin", err)
	}
	r.ReleasePin("b", 4) // not the owner
	if id, _ := r.Owner(4); id != "a" {
		t.Fatalf("owner = %q", id)
	}
	r.ReleasePin("a", 4)
	if _, err := r.ClaimPin("b", 4, core.FuncGPIOOut); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestAttachedLine(t *testing.T) {
	r := NewRegistry()
	s := dhttest.NewSensor(dht.Variant22, 500, 200)
	r.Attach(7, s)

	ph, err := r.ClaimPin("room", 7, core.FuncSingleWire)
	if err != nil {
		t.Fatal(err)
	}
	l := ph.(interface{ Line() dht.Line }).Line()
	h, temp, err := dht.ReadRaw(dht.Variant22, l)
	if err != nil || h != 500 || temp != 200 {
		t.Fatalf("got (%d,%d,%v)", h, temp, err)
	}
}

func TestPinPullUp(t *testing.T) {
	p := NewRegistry().Pin(3)
	_ = p.ConfigureInput(core.PullUp)
	if !p.Get() {
		t.Fatal("undriven input with pull-up reads low")
	}
	_ = p.ConfigureOutput(false)
	p.Toggle()
	if !p.Level() || p.Sets() != 1 {
		t.Fatalf("level=%v sets=%d", p.Level(), p.Sets())
	}
}
