//go:build !tinygo

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"envmon-go/types"
)

const sampleYAML = `
provider: sim
log:
  level: debug
  format: json
http:
  addr: ":8080"
hal:
  devices:
    - id: dht0
      type: dht
      params:
        pin: 4
        variant: am2302
        name: room
        min_interval_ms: 2500
    - id: led0
      type: gpio_led
      params:
        pin: 17
        active_low: true
        name: status
  pollers:
    - domain: env
      kind: temperature
      name: room
      verb: read
      interval_ms: 3000
      jitter_ms: 50
heartbeat:
  interval: 5
telemetry:
  device_id: lab_dht22
  redis:
    addr: localhost:6379
    prefix: envmon
`

func TestParseDecodesTypedParams(t *testing.T) {
	f, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Provider != "sim" || f.Log.Format != "json" || f.HTTP.Addr != ":8080" {
		t.Fatalf("host settings = %+v", f)
	}
	devs := f.Bundle.HAL.Devices
	if len(devs) != 2 {
		t.Fatalf("devices = %d, want 2", len(devs))
	}
	p, ok := devs[0].Params.(types.DHTParams)
	if !ok {
		t.Fatalf("dht params type %T", devs[0].Params)
	}
	if p.Pin != 4 || p.Variant != "am2302" || p.MinIntervalMs != 2500 {
		t.Fatalf("dht params = %+v", p)
	}
	l, ok := devs[1].Params.(types.LEDParams)
	if !ok || !l.ActiveLow || l.Pin != 17 {
		t.Fatalf("led params = %#v", devs[1].Params)
	}
	ps := f.Bundle.HAL.Pollers[0]
	if ps.Kind != types.KindTemperature || ps.IntervalMs != 3000 || ps.JitterMs != 50 {
		t.Fatalf("poller = %+v", ps)
	}
	if f.Bundle.Heartbeat.IntervalS != 5 {
		t.Fatalf("heartbeat interval = %d", f.Bundle.Heartbeat.IntervalS)
	}
	if r := f.Bundle.Telemetry.Redis; r == nil || r.Addr != "localhost:6379" || r.Prefix != "envmon" {
		t.Fatalf("redis = %+v", r)
	}
	// Defaults.
	if f.Bundle.EnvState.Name != "room" || f.Bundle.Indicator.ErrorToggleMs != DefaultErrorToggleMs {
		t.Fatalf("defaults not applied: %+v %+v", f.Bundle.EnvState, f.Bundle.Indicator)
	}
}

func TestParseMinimalUsesDefaults(t *testing.T) {
	f, err := Parse([]byte("hal:\n  devices: []\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Provider != "periph" || f.Log.Level != "info" || f.Log.Format != "text" {
		t.Fatalf("defaults = %+v", f)
	}
	if f.Bundle.Heartbeat.IntervalS != DefaultHeartbeatS {
		t.Fatalf("heartbeat = %d", f.Bundle.Heartbeat.IntervalS)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name, yaml, want string
	}{
		{"unknown type", "hal:\n  devices:\n    - id: x\n      type: bmp280\n", "unknown device type"},
		{"bad variant", "hal:\n  devices:\n    - id: x\n      type: dht\n      params: {pin: 3, variant: dht33}\n", "variant"},
		{"duplicate id", "hal:\n  devices:\n    - {id: a, type: gpio_led, params: {pin: 1}}\n    - {id: a, type: gpio_led, params: {pin: 2}}\n", "duplicate id"},
		{"shared pin", "hal:\n  devices:\n    - {id: a, type: gpio_led, params: {pin: 1}}\n    - {id: b, type: dht, params: {pin: 1, variant: dht11}}\n", "already used"},
		{"poller interval", "hal:\n  devices:\n    - {id: a, type: dht, params: {pin: 1, variant: dht11}}\n  pollers:\n    - {domain: env, kind: temperature, name: a}\n", "interval_ms"},
		{"poller target", "hal:\n  devices:\n    - {id: a, type: dht, params: {pin: 1, variant: dht11}}\n  pollers:\n    - {domain: env, kind: temperature, name: b, interval_ms: 10}\n", "unknown capability"},
		{"provider", "provider: gpiod\n", "provider"},
		{"log format", "log: {format: xml}\n", "log format"},
		{"redis addr", "telemetry:\n  redis: {db: 1}\n", "redis"},
		{"syntax", "hal: [\n", "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "envmon.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Bundle.Telemetry.DeviceID != "lab_dht22" {
		t.Fatalf("device id = %q", f.Bundle.Telemetry.DeviceID)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
