package config

import "envmon-go/types"

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: constructor for that device's bundle
// -----------------------------------------------------------------------------

var embeddedConfigs = map[string]func() Bundle{
	"pico": picoBundle,
	"sim":  simBundle,
}

// Raspberry Pi Pico: DHT22 on GP15, on-board LED on GP25, uplink on UART1.
func picoBundle() Bundle {
	return Bundle{
		HAL: types.HALConfig{
			Devices: []types.HALDevice{
				{ID: "dht0", Type: "dht", Params: types.DHTParams{Pin: 15, Variant: "dht22", Name: "room"}},
				{ID: "led0", Type: "gpio_led", Params: types.LEDParams{Pin: 25, Name: "status"}},
				{ID: "mcu", Type: "rp2_temp", Params: types.DieTempParams{Name: "core"}},
			},
			Pollers: []types.PollSpec{
				{Domain: "env", Kind: types.KindTemperature, Name: "room", Verb: "read", IntervalMs: 3000, JitterMs: 100},
				{Domain: "board", Kind: types.KindTemperature, Name: "core", Verb: "read", IntervalMs: 30000},
			},
		},
		Heartbeat: types.HeartbeatConfig{IntervalS: 10},
		Telemetry: types.TelemetryConfig{
			DeviceID: "pico_dht22",
			Link:     &types.LinkConfig{Transport: "uart", UART: "uart1", Baud: 115200},
		},
	}
}

// Host simulator: same shape, no uplink.
func simBundle() Bundle {
	return Bundle{
		HAL: types.HALConfig{
			Devices: []types.HALDevice{
				{ID: "dht0", Type: "dht", Params: types.DHTParams{Pin: 4, Variant: "dht22", Name: "room"}},
				{ID: "led0", Type: "gpio_led", Params: types.LEDParams{Pin: 17, Name: "status"}},
			},
			Pollers: []types.PollSpec{
				{Domain: "env", Kind: types.KindTemperature, Name: "room", Verb: "read", IntervalMs: 3000},
			},
		},
		Telemetry: types.TelemetryConfig{DeviceID: "sim_dht22"},
	}
}
