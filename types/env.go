package types

// ------------------------
// Temperature & humidity
// ------------------------

// DHTParams configures a "dht" HAL device.
type DHTParams struct {
	Pin     int    `json:"pin"     yaml:"pin"`
	Variant string `json:"variant" yaml:"variant"` // "dht11" | "dht22" | "am2301" | "am2302"
	Domain  string `json:"domain"  yaml:"domain"`  // default "env"
	Name    string `json:"name"    yaml:"name"`    // default device id

	// MinIntervalMs overrides the sensor's quiescent time between reads.
	// Zero keeps the variant default.
	MinIntervalMs uint32 `json:"min_interval_ms" yaml:"min_interval_ms"`
	// BitThreshold selects the fixed-threshold bit decision (ticks).
	BitThreshold uint32 `json:"bit_threshold" yaml:"bit_threshold"`
}

type TemperatureInfo struct {
	Sensor string `json:"sensor"` // "dht11", "dht22", ...
	Pin    int    `json:"pin"`
}

type HumidityInfo struct {
	Sensor string `json:"sensor"`
	Pin    int    `json:"pin"`
}

type TemperatureValue struct {
	// Tenths of °C (e.g. 231 => 23.1°C).
	DeciC int16 `json:"deci_c"`
}

type HumidityValue struct {
	// Hundredths of %RH (0..10000 for 0..100.00%).
	RHx100 uint16 `json:"rh_x100"`
}

// DieTempParams configures an "rp2_temp" HAL device. Domain defaults to
// "board", Name to the device id.
type DieTempParams struct {
	Domain string `json:"domain" yaml:"domain"`
	Name   string `json:"name"   yaml:"name"`
}
