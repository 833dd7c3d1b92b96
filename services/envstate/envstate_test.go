package envstate

import (
	"context"
	"testing"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/types"
)

func capTopic(kind types.Kind, leaf string) bus.Topic {
	return bus.T("hal", "cap", "env", string(kind), "room", leaf)
}

func start(t *testing.T) (*Service, *bus.Connection, *bus.Subscription) {
	t.Helper()
	b := bus.NewBus(32)
	conn := b.NewConnection("test")
	conn.Publish(conn.NewMessage(config.Topic(config.KeyEnvState),
		types.EnvStateConfig{Domain: "env", Name: "room"}, true))

	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s.Start(ctx, conn)

	sub := conn.Subscribe(Topic())
	t.Cleanup(func() { conn.Unsubscribe(sub) })
	// Let the service pick up its config before tests publish readings.
	time.Sleep(20 * time.Millisecond)
	return s, conn, sub
}

func reading(conn *bus.Connection, deciC int16, rhx100 uint16) {
	conn.Publish(conn.NewMessage(capTopic(types.KindTemperature, "value"), types.TemperatureValue{DeciC: deciC}, true))
	conn.Publish(conn.NewMessage(capTopic(types.KindTemperature, "status"), types.CapabilityStatus{Link: types.LinkUp}, true))
	conn.Publish(conn.NewMessage(capTopic(types.KindHumidity, "value"), types.HumidityValue{RHx100: rhx100}, true))
	conn.Publish(conn.NewMessage(capTopic(types.KindHumidity, "status"), types.CapabilityStatus{Link: types.LinkUp}, true))
}

func failure(conn *bus.Connection, code string) {
	st := types.CapabilityStatus{Link: types.LinkDegraded, Error: code}
	conn.Publish(conn.NewMessage(capTopic(types.KindTemperature, "status"), st, true))
	conn.Publish(conn.NewMessage(capTopic(types.KindHumidity, "status"), st, true))
}

func nextState(t *testing.T, sub *bus.Subscription) types.EnvState {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m.Payload.(types.EnvState)
	case <-time.After(time.Second):
		t.Fatal("no env/state published")
		return types.EnvState{}
	}
}

func TestUnknownUntilFirstReading(t *testing.T) {
	s, _, _ := start(t)
	st := s.Snapshot()
	if st.Valid || st.SensorOnline || st.Reads != 0 {
		t.Fatalf("initial snapshot = %+v", st)
	}
}

func TestGoodReadingCommitted(t *testing.T) {
	s, conn, sub := start(t)
	reading(conn, 231, 5430)

	st := nextState(t, sub)
	if !st.Valid || st.DeciC != 231 || st.DeciRH != 543 || !st.SensorOnline {
		t.Fatalf("state = %+v", st)
	}
	if st.Reads != 1 || st.Successes != 1 || st.Seq != 1 {
		t.Fatalf("counters = %+v", st)
	}
	if s.Snapshot() != st {
		t.Fatalf("Snapshot = %+v, published %+v", s.Snapshot(), st)
	}
}

func TestFailureRetainsLastGood(t *testing.T) {
	_, conn, sub := start(t)
	reading(conn, -35, 9999)
	nextState(t, sub)

	failure(conn, "checksum_mismatch")
	st := nextState(t, sub)
	if !st.Valid || st.DeciC != -35 || st.DeciRH != 1000 {
		t.Fatalf("last good values lost: %+v", st)
	}
	if st.SensorOnline || st.LastError != "checksum_mismatch" {
		t.Fatalf("failure not recorded: %+v", st)
	}
	if st.Reads != 2 || st.Failures != 1 || st.Successes != 1 {
		t.Fatalf("counters = %+v (one failure counted once)", st)
	}

	reading(conn, 200, 5000)
	st = nextState(t, sub)
	if !st.SensorOnline || st.LastError != "" || st.Seq != 2 {
		t.Fatalf("recovery = %+v", st)
	}
}

func TestFailureBeforeAnyReadingStaysUnknown(t *testing.T) {
	_, conn, sub := start(t)
	failure(conn, "timeout_response_low")
	st := nextState(t, sub)
	if st.Valid {
		t.Fatalf("valid after failure only: %+v", st)
	}
}

func TestLinkState(t *testing.T) {
	s, conn, sub := start(t)
	conn.Publish(conn.NewMessage(LinkTopic(), types.LinkState{Level: "up"}, true))
	if st := nextState(t, sub); !st.LinkUp {
		t.Fatalf("link not up: %+v", st)
	}
	conn.Publish(conn.NewMessage(LinkTopic(), types.LinkState{Level: "down", Status: "dial_failed"}, true))
	if st := nextState(t, sub); st.LinkUp {
		t.Fatalf("link still up: %+v", st)
	}
	if s.Snapshot().LinkUp {
		t.Fatal("snapshot link still up")
	}
}
