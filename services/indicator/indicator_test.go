package indicator

import (
	"context"
	"testing"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/types"
)

type ctrl struct {
	verb string
	on   bool
}

func start(t *testing.T) (*bus.Connection, *bus.Subscription, *bus.Subscription) {
	t.Helper()
	b := bus.NewBus(64)
	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(config.Topic(config.KeyIndicator), types.IndicatorConfig{
		Domain: "io", Name: "status", ErrorToggleMs: 10, BlinkMs: 20,
	}, true))

	ctrlSub := conn.Subscribe(bus.T("hal", "cap", "io", "led", "status", "control", "+"))
	stateSub := conn.Subscribe(Topic())
	ctx, cancel := context.WithCancel(context.Background())
	New().Start(ctx, conn)
	t.Cleanup(func() {
		cancel()
		conn.Unsubscribe(ctrlSub)
		conn.Unsubscribe(stateSub)
	})
	return conn, ctrlSub, stateSub
}

func nextCtrl(t *testing.T, sub *bus.Subscription) ctrl {
	t.Helper()
	select {
	case m := <-sub.Channel():
		verb, _ := m.Topic.At(6).(string)
		c := ctrl{verb: verb}
		if p, ok := m.Payload.(types.LEDSet); ok {
			c.on = p.On
		}
		return c
	case <-time.After(time.Second):
		t.Fatal("no LED control")
		return ctrl{}
	}
}

func nextMode(t *testing.T, sub *bus.Subscription) bool {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m.Payload.(types.IndicatorState).Error
	case <-time.After(time.Second):
		t.Fatal("no indicator state")
		return false
	}
}

func TestErrorModeToggles(t *testing.T) {
	conn, ctrlSub, stateSub := start(t)
	conn.Publish(conn.NewMessage(envstate.Topic(), types.EnvState{SensorOnline: false, LinkUp: true}, true))

	if !nextMode(t, stateSub) {
		t.Fatal("want error mode")
	}
	for i := 0; i < 3; i++ {
		if c := nextCtrl(t, ctrlSub); c.verb != "toggle" {
			t.Fatalf("control %d = %+v, want toggle", i, c)
		}
	}
}

func TestNormalModeBlinksPerReading(t *testing.T) {
	conn, ctrlSub, stateSub := start(t)
	conn.Publish(conn.NewMessage(envstate.Topic(),
		types.EnvState{Valid: true, SensorOnline: true, LinkUp: true, Seq: 1}, true))

	if nextMode(t, stateSub) {
		t.Fatal("want normal mode")
	}
	want := []ctrl{{"set", false}, {"set", true}, {"set", false}}
	for i, w := range want {
		if c := nextCtrl(t, ctrlSub); c != w {
			t.Fatalf("control %d = %+v, want %+v", i, c, w)
		}
	}

	// Same reading again: no blink.
	conn.Publish(conn.NewMessage(envstate.Topic(),
		types.EnvState{Valid: true, SensorOnline: true, LinkUp: true, Seq: 1, Reads: 2}, true))
	select {
	case m := <-ctrlSub.Channel():
		t.Fatalf("unexpected control %s", m.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLinkDownIsError(t *testing.T) {
	conn, _, stateSub := start(t)
	conn.Publish(conn.NewMessage(envstate.Topic(),
		types.EnvState{Valid: true, SensorOnline: true, LinkUp: true, Seq: 1}, true))
	if nextMode(t, stateSub) {
		t.Fatal("want normal mode")
	}
	conn.Publish(conn.NewMessage(envstate.Topic(),
		types.EnvState{Valid: true, SensorOnline: true, LinkUp: false, Seq: 1}, true))
	if !nextMode(t, stateSub) {
		t.Fatal("want error mode after uplink loss")
	}
}
