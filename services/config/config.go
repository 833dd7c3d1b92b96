package config

import (
	"context"
	"errors"

	"envmon-go/bus"
	"envmon-go/types"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device ID
)

// Keys under config/<key>.
const (
	KeyHAL       = "hal"
	KeyHeartbeat = "heartbeat"
	KeyEnvState  = "envstate"
	KeyIndicator = "indicator"
	KeyTelemetry = "telemetry"
)

// Topic returns config/<key>.
func Topic(key string) bus.Topic { return bus.T(configPrefix, key) }

// Bundle is the complete configuration of one device. Each section is
// published retained on its own key.
type Bundle struct {
	HAL       types.HALConfig       `yaml:"hal"`
	Heartbeat types.HeartbeatConfig `yaml:"heartbeat"`
	EnvState  types.EnvStateConfig  `yaml:"envstate"`
	Indicator types.IndicatorConfig `yaml:"indicator"`
	Telemetry types.TelemetryConfig `yaml:"telemetry"`
}

// Defaults for sections left empty.
const (
	DefaultHeartbeatS      = 10
	DefaultErrorToggleMs   = 75
	DefaultBlinkMs         = 100
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultTempStateTopic  = "temperature/state"
	DefaultHumStateTopic   = "humidity/state"
	DefaultLinkBaud        = 115200
	DefaultBackoffMinMs    = 500
	DefaultBackoffMaxMs    = 8000
)

// ApplyDefaults fills unset fields in place.
func (b *Bundle) ApplyDefaults() {
	if b.Heartbeat.IntervalS == 0 {
		b.Heartbeat.IntervalS = DefaultHeartbeatS
	}
	if b.EnvState.Domain == "" {
		b.EnvState.Domain = "env"
	}
	if b.EnvState.Name == "" {
		b.EnvState.Name = firstSensorName(b.HAL)
	}

	ind := &b.Indicator
	if ind.Domain == "" {
		ind.Domain = "io"
	}
	if ind.Name == "" {
		ind.Name = "status"
	}
	if ind.ErrorToggleMs == 0 {
		ind.ErrorToggleMs = DefaultErrorToggleMs
	}
	if ind.BlinkMs == 0 {
		ind.BlinkMs = DefaultBlinkMs
	}

	tc := &b.Telemetry
	if tc.DeviceID == "" {
		tc.DeviceID = "envmon"
	}
	if tc.DiscoveryPrefix == "" {
		tc.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	if tc.TempStateTopic == "" {
		tc.TempStateTopic = DefaultTempStateTopic
	}
	if tc.HumStateTopic == "" {
		tc.HumStateTopic = DefaultHumStateTopic
	}
	if l := tc.Link; l != nil {
		if l.Transport == "" {
			l.Transport = "uart"
		}
		if l.Baud == 0 {
			l.Baud = DefaultLinkBaud
		}
		if l.BackoffMinMs == 0 {
			l.BackoffMinMs = DefaultBackoffMinMs
		}
		if l.BackoffMaxMs == 0 {
			l.BackoffMaxMs = DefaultBackoffMaxMs
		}
	}
}

// firstSensorName is the capability name of the first dht device.
func firstSensorName(hc types.HALConfig) string {
	for _, d := range hc.Devices {
		if d.Type != "dht" {
			continue
		}
		var p types.DHTParams
		switch v := d.Params.(type) {
		case types.DHTParams:
			p = v
		case *types.DHTParams:
			p = *v
		}
		if p.Name != "" {
			return p.Name
		}
		return d.ID
	}
	return ""
}

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) (Bundle, bool) {
	mk, ok := embeddedConfigs[device]
	if !ok {
		return Bundle{}, false
	}
	return mk(), true
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string

	bundle *Bundle
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// WithBundle makes the service publish b instead of the embedded config.
func (s *ConfigService) WithBundle(b Bundle) *ConfigService {
	s.bundle = &b
	return s
}

func (s *ConfigService) resolve(ctx context.Context) (Bundle, error) {
	if s.bundle != nil {
		return *s.bundle, nil
	}
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return Bundle{}, errors.New("missing device ID in context")
	}
	b, ok := EmbeddedConfigLookup(device)
	if !ok {
		return Bundle{}, errors.New("no embedded config for device: " + device)
	}
	return b, nil
}

// publishConfig resolves the bundle and publishes each section retained.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	b, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	Publish(conn, b)
	return nil
}

// Publish applies defaults to b and publishes every section on
// config/<key>, retained.
func Publish(conn *bus.Connection, b Bundle) {
	b.ApplyDefaults()
	conn.Publish(conn.NewMessage(Topic(KeyHeartbeat), b.Heartbeat, true))
	conn.Publish(conn.NewMessage(Topic(KeyEnvState), b.EnvState, true))
	conn.Publish(conn.NewMessage(Topic(KeyIndicator), b.Indicator, true))
	conn.Publish(conn.NewMessage(Topic(KeyTelemetry), b.Telemetry, true))
	// HAL last so its consumers find their own sections in place.
	conn.Publish(conn.NewMessage(Topic(KeyHAL), b.HAL, true))
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			println("[config]", err.Error())
		}
	}()
}
