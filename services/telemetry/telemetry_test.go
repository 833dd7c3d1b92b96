package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"envmon-go/bus"
	"envmon-go/services/config"
	"envmon-go/services/envstate"
	"envmon-go/types"
)

type fakeSink struct {
	mu        sync.Mutex
	fail      error
	readings  chan Reading
	announced chan []Discovery
	closed    chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		readings:  make(chan Reading, 8),
		announced: make(chan []Discovery, 8),
		closed:    make(chan struct{}),
	}
}

func (f *fakeSink) Name() string { return "modbus" }

func (f *fakeSink) Publish(ctx context.Context, r Reading) error {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	f.readings <- r
	return err
}

func (f *fakeSink) Announce(ctx context.Context, ds []Discovery) error {
	f.announced <- ds
	return nil
}

func (f *fakeSink) Close() error {
	close(f.closed)
	return nil
}

func (f *fakeSink) setFail(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

// withSink installs f as the "modbus" sink for the duration of the test.
func withSink(t *testing.T, f SinkFactory) {
	t.Helper()
	regMu.RLock()
	prev := factories["modbus"]
	regMu.RUnlock()
	RegisterSink("modbus", f)
	t.Cleanup(func() {
		regMu.Lock()
		defer regMu.Unlock()
		if prev == nil {
			delete(factories, "modbus")
		} else {
			factories["modbus"] = prev
		}
	})
}

func startService(t *testing.T) (*bus.Connection, *bus.Subscription, context.CancelFunc) {
	t.Helper()
	b := bus.NewBus(32)
	conn := b.NewConnection("telemetry_test")
	sub := conn.Subscribe(Topic())
	t.Cleanup(func() { conn.Unsubscribe(sub) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	New().Start(ctx, conn)
	return conn, sub, cancel
}

func publishConfig(conn *bus.Connection, cfg types.TelemetryConfig) {
	conn.Publish(conn.NewMessage(config.Topic(config.KeyTelemetry), cfg, true))
}

func publishEnv(conn *bus.Connection, st types.EnvState) {
	conn.Publish(conn.NewMessage(envstate.Topic(), st, true))
}

func waitLink(t *testing.T, sub *bus.Subscription, level, status string) types.LinkState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-sub.Channel():
			st, ok := m.Payload.(types.LinkState)
			if !ok {
				t.Fatalf("payload type %T", m.Payload)
			}
			if st.Level == level && st.Status == status {
				return st
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s/%s", level, status)
			return types.LinkState{}
		}
	}
}

func nextReading(t *testing.T, f *fakeSink) Reading {
	t.Helper()
	select {
	case r := <-f.readings:
		return r
	case <-time.After(time.Second):
		t.Fatal("sink got no reading")
		return Reading{}
	}
}

func TestAwaitingConfigThenNoSinks(t *testing.T) {
	conn, sub, _ := startService(t)
	waitLink(t, sub, "down", "awaiting_config")

	publishConfig(conn, testConfig())
	waitLink(t, sub, "up", "no_sinks")
}

func TestForwardsValidReadings(t *testing.T) {
	f := newFakeSink()
	withSink(t, func(types.TelemetryConfig) (Sink, error) { return f, nil })

	conn, sub, cancel := startService(t)
	cfg := testConfig()
	cfg.Modbus = &types.ModbusConfig{Addr: "x"}
	publishConfig(conn, cfg)
	waitLink(t, sub, "up", "all_sinks_up")

	select {
	case ds := <-f.announced:
		if len(ds) != 2 {
			t.Fatalf("announced %d entities", len(ds))
		}
	case <-time.After(time.Second):
		t.Fatal("no announcement")
	}

	// Invalid state is never forwarded.
	publishEnv(conn, types.EnvState{SensorOnline: false, Reads: 1, Failures: 1})
	publishEnv(conn, types.EnvState{Valid: true, DeciC: 231, DeciRH: 543, SensorOnline: true, Seq: 1})
	r := nextReading(t, f)
	if !r.Fresh || r.DeciC != 231 || r.DeciRH != 543 || r.Seq != 1 {
		t.Fatalf("reading = %+v", r)
	}

	// Health change without a new reading.
	publishEnv(conn, types.EnvState{Valid: true, DeciC: 231, DeciRH: 543, SensorOnline: false, LastError: "timeout_bit", Seq: 1})
	r = nextReading(t, f)
	if r.Fresh || r.SensorOnline || r.LastError != "timeout_bit" {
		t.Fatalf("reading = %+v", r)
	}

	// Same state again: nothing sent.
	publishEnv(conn, types.EnvState{Valid: true, DeciC: 231, DeciRH: 543, SensorOnline: false, LastError: "timeout_bit", Seq: 1})
	select {
	case r := <-f.readings:
		t.Fatalf("unexpected reading %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case <-f.closed:
	case <-time.After(time.Second):
		t.Fatal("sink not closed on shutdown")
	}
	waitLink(t, sub, "stopped", "context_cancelled")
}

func TestPublishFailureMarksSinkDown(t *testing.T) {
	f := newFakeSink()
	withSink(t, func(types.TelemetryConfig) (Sink, error) { return f, nil })

	conn, sub, _ := startService(t)
	cfg := testConfig()
	cfg.Modbus = &types.ModbusConfig{Addr: "x"}
	publishConfig(conn, cfg)
	waitLink(t, sub, "up", "all_sinks_up")

	f.setFail(errors.New("i/o timeout"))
	publishEnv(conn, types.EnvState{Valid: true, SensorOnline: true, Seq: 1})
	nextReading(t, f)
	st := waitLink(t, sub, "down", "modbus_publish_failed")
	if st.Error != "i/o timeout" {
		t.Fatalf("error = %q", st.Error)
	}

	f.setFail(nil)
	publishEnv(conn, types.EnvState{Valid: true, SensorOnline: true, Seq: 2})
	nextReading(t, f)
	waitLink(t, sub, "up", "all_sinks_up")
}

func TestSinkInitFailure(t *testing.T) {
	withSink(t, func(types.TelemetryConfig) (Sink, error) { return nil, errors.New("no route") })

	conn, sub, _ := startService(t)
	cfg := testConfig()
	cfg.Modbus = &types.ModbusConfig{Addr: "x"}
	publishConfig(conn, cfg)
	st := waitLink(t, sub, "down", "modbus_init_failed")
	if st.Error != "no route" {
		t.Fatalf("error = %q", st.Error)
	}
}

func TestSupervisedSinkFollowsLink(t *testing.T) {
	prevDial := UARTDial
	defer func() { UARTDial = prevDial }()
	UARTDial = nil

	conn, sub, _ := startService(t)
	publishConfig(conn, linkConfig())
	waitLink(t, sub, "down", "link_connecting")
	st := waitLink(t, sub, "down", "link_dial_failed_retrying")
	if st.Error != errNoDial.Error() {
		t.Fatalf("error = %q", st.Error)
	}
}
