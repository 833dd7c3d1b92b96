//go:build !tinygo

package config

import (
	"fmt"
	"os"

	"envmon-go/drivers/dht"
	"envmon-go/types"
	"envmon-go/x/strx"

	"gopkg.in/yaml.v3"
)

// File is the host daemon's YAML configuration: a Bundle plus the settings
// that only exist off the microcontroller.
type File struct {
	Bundle   Bundle
	Provider string // "periph" | "sim"
	Log      LogConfig
	HTTP     HTTPConfig
}

type LogConfig struct {
	Level  string `yaml:"level"`  // logrus level name
	Format string `yaml:"format"` // "text" | "json"
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// On-disk shape. Device params are decoded by device type.
type fileDoc struct {
	Provider  string                `yaml:"provider"`
	Log       LogConfig             `yaml:"log"`
	HTTP      HTTPConfig            `yaml:"http"`
	HAL       fileHAL               `yaml:"hal"`
	Heartbeat types.HeartbeatConfig `yaml:"heartbeat"`
	EnvState  types.EnvStateConfig  `yaml:"envstate"`
	Indicator types.IndicatorConfig `yaml:"indicator"`
	Telemetry types.TelemetryConfig `yaml:"telemetry"`
}

type fileHAL struct {
	Devices []fileDevice     `yaml:"devices"`
	Pollers []types.PollSpec `yaml:"pollers"`
}

type fileDevice struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Params yaml.Node `yaml:"params"`
}

// Load reads, decodes, defaults and validates the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	f := &File{
		Provider: doc.Provider,
		Log:      doc.Log,
		HTTP:     doc.HTTP,
		Bundle: Bundle{
			HAL:       types.HALConfig{Pollers: doc.HAL.Pollers},
			Heartbeat: doc.Heartbeat,
			EnvState:  doc.EnvState,
			Indicator: doc.Indicator,
			Telemetry: doc.Telemetry,
		},
	}
	for i := range doc.HAL.Devices {
		d := &doc.HAL.Devices[i]
		params, err := decodeParams(d.Type, &d.Params)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", d.ID, err)
		}
		f.Bundle.HAL.Devices = append(f.Bundle.HAL.Devices,
			types.HALDevice{ID: d.ID, Type: d.Type, Params: params})
	}

	f.applyDefaults()
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeParams(typ string, n *yaml.Node) (any, error) {
	switch typ {
	case "dht":
		var p types.DHTParams
		err := decodeNode(n, &p)
		return p, err
	case "gpio_led":
		var p types.LEDParams
		err := decodeNode(n, &p)
		return p, err
	case "rp2_temp":
		var p types.DieTempParams
		err := decodeNode(n, &p)
		return p, err
	default:
		return nil, fmt.Errorf("unknown device type %q", typ)
	}
}

// decodeNode leaves dst untouched when the params block is absent.
func decodeNode[T any](n *yaml.Node, dst *T) error {
	if n.Kind == 0 {
		return nil
	}
	if err := n.Decode(dst); err != nil {
		return fmt.Errorf("params: %w", err)
	}
	return nil
}

func (f *File) applyDefaults() {
	f.Bundle.ApplyDefaults()
	if f.Provider == "" {
		f.Provider = "periph"
	}
	if f.Log.Level == "" {
		f.Log.Level = "info"
	}
	if f.Log.Format == "" {
		f.Log.Format = "text"
	}
}

// Validate checks configuration correctness. It does not mutate f.
func Validate(f *File) error {
	switch f.Provider {
	case "periph", "sim":
	default:
		return fmt.Errorf("provider %q: want periph or sim", f.Provider)
	}
	switch f.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", f.Log.Format)
	}

	type capKey struct{ domain, kind, name string }
	caps := map[capKey]bool{}
	ids := map[string]bool{}
	pins := map[int]string{}

	claim := func(id string, pin int) error {
		if other, ok := pins[pin]; ok {
			return fmt.Errorf("device %q: pin %d already used by %q", id, pin, other)
		}
		pins[pin] = id
		return nil
	}

	for _, d := range f.Bundle.HAL.Devices {
		if d.ID == "" {
			return fmt.Errorf("device of type %q has no id", d.Type)
		}
		if ids[d.ID] {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		ids[d.ID] = true

		switch p := d.Params.(type) {
		case types.DHTParams:
			if _, err := dht.ParseVariant(p.Variant); err != nil {
				return fmt.Errorf("device %q: variant %q: %w", d.ID, p.Variant, err)
			}
			if err := claim(d.ID, p.Pin); err != nil {
				return err
			}
			domain, name := strx.Coalesce(p.Domain, "env"), strx.Coalesce(p.Name, d.ID)
			caps[capKey{domain, string(types.KindTemperature), name}] = true
			caps[capKey{domain, string(types.KindHumidity), name}] = true
		case types.LEDParams:
			if err := claim(d.ID, p.Pin); err != nil {
				return err
			}
			caps[capKey{strx.Coalesce(p.Domain, "io"), string(types.KindLED), strx.Coalesce(p.Name, d.ID)}] = true
		case types.DieTempParams:
			caps[capKey{strx.Coalesce(p.Domain, "board"), string(types.KindTemperature), strx.Coalesce(p.Name, d.ID)}] = true
		}
	}

	for i, ps := range f.Bundle.HAL.Pollers {
		if ps.IntervalMs == 0 {
			return fmt.Errorf("poller %d (%s/%s/%s): interval_ms must be > 0", i, ps.Domain, ps.Kind, ps.Name)
		}
		if !caps[capKey{ps.Domain, string(ps.Kind), ps.Name}] {
			return fmt.Errorf("poller %d: unknown capability %s/%s/%s", i, ps.Domain, ps.Kind, ps.Name)
		}
	}

	tc := f.Bundle.Telemetry
	if tc.Redis != nil && tc.Redis.Addr == "" {
		return fmt.Errorf("telemetry.redis: addr required")
	}
	if tc.Modbus != nil && tc.Modbus.Addr == "" {
		return fmt.Errorf("telemetry.modbus: addr required")
	}
	if l := tc.Link; l != nil && l.BackoffMinMs > l.BackoffMaxMs {
		return fmt.Errorf("telemetry.link: backoff_min_ms %d exceeds backoff_max_ms %d", l.BackoffMinMs, l.BackoffMaxMs)
	}
	return nil
}
