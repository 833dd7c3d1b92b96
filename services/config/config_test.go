// config/config_test.go
package config

import (
	"context"
	"testing"
	"time"

	"envmon-go/bus"
	"envmon-go/types"
)

func collect(t *testing.T, conn *bus.Connection, want int) map[string]any {
	t.Helper()
	sub := conn.Subscribe(bus.T(configPrefix, "#"))
	defer conn.Unsubscribe(sub)

	got := map[string]any{}
	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < want && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() != 2 {
				t.Fatalf("unexpected topic: %s", m.Topic)
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	return got
}

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) (Bundle, bool) {
		if device != "pico" {
			return Bundle{}, false
		}
		return Bundle{
			HAL: types.HALConfig{Devices: []types.HALDevice{
				{ID: "dht0", Type: "dht", Params: types.DHTParams{Pin: 2, Variant: "dht11"}},
			}},
			Heartbeat: types.HeartbeatConfig{IntervalS: 2},
		}, true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "pico")
	NewConfigService().Start(ctx, conn)

	got := collect(t, conn, 5)
	if len(got) != 5 {
		t.Fatalf("expected 5 retained messages, got %d (%v)", len(got), got)
	}
	if hb, ok := got[KeyHeartbeat].(types.HeartbeatConfig); !ok || hb.IntervalS != 2 {
		t.Fatalf("heartbeat payload = %#v", got[KeyHeartbeat])
	}
	if hc, ok := got[KeyHAL].(types.HALConfig); !ok || len(hc.Devices) != 1 {
		t.Fatalf("hal payload = %#v", got[KeyHAL])
	}
	// Defaults are applied to sections the bundle left empty.
	es, ok := got[KeyEnvState].(types.EnvStateConfig)
	if !ok || es.Domain != "env" || es.Name != "dht0" {
		t.Fatalf("envstate payload = %#v", got[KeyEnvState])
	}
	ind, ok := got[KeyIndicator].(types.IndicatorConfig)
	if !ok || ind.ErrorToggleMs != DefaultErrorToggleMs || ind.BlinkMs != DefaultBlinkMs {
		t.Fatalf("indicator payload = %#v", got[KeyIndicator])
	}
	tc, ok := got[KeyTelemetry].(types.TelemetryConfig)
	if !ok || tc.DiscoveryPrefix != "homeassistant" || tc.TempStateTopic != "temperature/state" {
		t.Fatalf("telemetry payload = %#v", got[KeyTelemetry])
	}
}

func TestConfig_WithBundleOverridesLookup(t *testing.T) {
	b := bus.NewBus(16)
	conn := b.NewConnection("test-bundle")

	svc := NewConfigService().WithBundle(Bundle{Heartbeat: types.HeartbeatConfig{IntervalS: 30}})
	if err := svc.publishConfig(context.Background(), conn); err != nil {
		t.Fatal(err)
	}
	got := collect(t, conn, 5)
	if hb, _ := got[KeyHeartbeat].(types.HeartbeatConfig); hb.IntervalS != 30 {
		t.Fatalf("heartbeat = %#v, want interval 30", got[KeyHeartbeat])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) (Bundle, bool) { return Bundle{}, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestEmbeddedBundlesSelfConsistent(t *testing.T) {
	for name, mk := range embeddedConfigs {
		b := mk()
		b.ApplyDefaults()
		if b.EnvState.Name != "room" {
			t.Errorf("%s: envstate name = %q, want room", name, b.EnvState.Name)
		}
		for _, ps := range b.HAL.Pollers {
			if ps.IntervalMs == 0 {
				t.Errorf("%s: poller %s/%s without interval", name, ps.Kind, ps.Name)
			}
		}
	}
}
