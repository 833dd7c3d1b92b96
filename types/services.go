package types

// ------------------------
// Service configuration (config/<key>, retained)
// ------------------------

type HeartbeatConfig struct {
	IntervalS uint32 `json:"interval" yaml:"interval"` // seconds
}

// EnvStateConfig names the sensor capability the snapshot follows.
type EnvStateConfig struct {
	Domain string `json:"domain" yaml:"domain"` // default "env"
	Name   string `json:"name"   yaml:"name"`
}

type IndicatorConfig struct {
	Domain        string `json:"domain"          yaml:"domain"` // LED capability, default "io"
	Name          string `json:"name"            yaml:"name"`   // default "status"
	ErrorToggleMs uint32 `json:"error_toggle_ms" yaml:"error_toggle_ms"`
	BlinkMs       uint32 `json:"blink_ms"        yaml:"blink_ms"`
}

type TelemetryConfig struct {
	DeviceID        string `json:"device_id"        yaml:"device_id"`        // unique id stem
	DiscoveryPrefix string `json:"discovery_prefix" yaml:"discovery_prefix"` // "homeassistant"
	TempStateTopic  string `json:"temp_state_topic" yaml:"temp_state_topic"`
	HumStateTopic   string `json:"hum_state_topic"  yaml:"hum_state_topic"`

	Link   *LinkConfig   `json:"link,omitempty"   yaml:"link"`
	Redis  *RedisConfig  `json:"redis,omitempty"  yaml:"redis"`
	Modbus *ModbusConfig `json:"modbus,omitempty" yaml:"modbus"`
}

// LinkConfig selects the framed serial uplink.
type LinkConfig struct {
	Transport    string `json:"transport" yaml:"transport"` // "uart"
	UART         string `json:"uart"      yaml:"uart"`      // "uart0" | "uart1" | device path on a host
	Baud         uint32 `json:"baud"      yaml:"baud"`
	BackoffMinMs uint32 `json:"backoff_min_ms" yaml:"backoff_min_ms"`
	BackoffMaxMs uint32 `json:"backoff_max_ms" yaml:"backoff_max_ms"`
}

type RedisConfig struct {
	Addr     string `json:"addr"     yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db"       yaml:"db"`
	Prefix   string `json:"prefix"   yaml:"prefix"` // prepended to every channel/key
}

// ModbusConfig mirrors the latest reading into holding registers of a
// Modbus TCP server.
type ModbusConfig struct {
	Addr      string `json:"addr"       yaml:"addr"` // host:port
	UnitID    byte   `json:"unit_id"    yaml:"unit_id"`
	BaseReg   uint16 `json:"base_reg"   yaml:"base_reg"`
	TimeoutMs uint32 `json:"timeout_ms" yaml:"timeout_ms"`
}

// ------------------------
// Service state (retained)
// ------------------------

// EnvState is the last good reading plus sensor and uplink health, on
// env/state. Values are tenths and only meaningful when Valid.
type EnvState struct {
	Valid        bool   `json:"valid"`
	DeciC        int16  `json:"deci_c"`
	DeciRH       int16  `json:"deci_rh"`
	SensorOnline bool   `json:"sensor_online"`
	LinkUp       bool   `json:"link_up"`
	Reads        uint32 `json:"reads"`
	Successes    uint32 `json:"successes"`
	Failures     uint32 `json:"failures"`
	LastError    string `json:"last_error,omitempty"`
	LastGoodMs   int64  `json:"last_good_ms"`
	TSms         int64  `json:"ts_ms"`
	Seq          uint32 `json:"seq"` // bumped on every fresh good reading
}

type IndicatorState struct {
	Error bool  `json:"error"`
	TSms  int64 `json:"ts_ms"`
}

// LinkState is the uplink supervisor state on telemetry/state.
type LinkState struct {
	Level  string `json:"level"`  // "up" | "down" | "stopped"
	Status string `json:"status"` // short code
	Error  string `json:"error,omitempty"`
	TSms   int64  `json:"ts_ms"`
}
