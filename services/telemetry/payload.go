package telemetry

import (
	"encoding/json"

	"envmon-go/types"
	"envmon-go/x/conv"
)

// Reading is what sinks publish. Values are tenths. Fresh is false when
// only the sensor health changed since the last publish.
type Reading struct {
	DeciC        int16
	DeciRH       int16
	Fresh        bool
	SensorOnline bool
	LastError    string
	Seq          uint32
	TSms         int64
}

func readingFrom(st types.EnvState, fresh bool) Reading {
	return Reading{
		DeciC:        st.DeciC,
		DeciRH:       st.DeciRH,
		Fresh:        fresh,
		SensorOnline: st.SensorOnline,
		LastError:    st.LastError,
		Seq:          st.Seq,
		TSms:         st.TSms,
	}
}

// Message is one topic/payload pair for topic-oriented sinks.
type Message struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// StateMessages renders r as the per-quantity state payloads
// ({"temperature":23.1} and {"humidity":54.3}), only for a fresh reading,
// followed by the combined status payload on <device_id>/status.
func StateMessages(cfg types.TelemetryConfig, r Reading) []Message {
	var out []Message
	if r.Fresh {
		out = append(out,
			Message{Topic: cfg.TempStateTopic, Payload: object("temperature", r.DeciC)},
			Message{Topic: cfg.HumStateTopic, Payload: object("humidity", r.DeciRH)},
		)
	}
	return append(out, Message{Topic: cfg.DeviceID + "/status", Payload: statusPayload(r)})
}

func object(key string, tenths int16) []byte {
	var nb [12]byte
	b := make([]byte, 0, len(key)+16)
	b = append(b, `{"`...)
	b = append(b, key...)
	b = append(b, `":`...)
	b = append(b, conv.Tenths(nb[:], int32(tenths))...)
	return append(b, '}')
}

func statusPayload(r Reading) []byte {
	var tb, hb [12]byte
	b := make([]byte, 0, 96)
	b = append(b, `{"temperature":`...)
	b = append(b, conv.Tenths(tb[:], int32(r.DeciC))...)
	b = append(b, `,"humidity":`...)
	b = append(b, conv.Tenths(hb[:], int32(r.DeciRH))...)
	b = append(b, `,"sensor_ok":`...)
	if r.SensorOnline {
		b = append(b, "true"...)
	} else {
		b = append(b, "false"...)
	}
	if r.LastError != "" {
		b = append(b, `,"error":"`...)
		b = append(b, r.LastError...)
		b = append(b, '"')
	}
	return append(b, '}')
}

// ---- Discovery ----

// Discovery announces one sensor entity to a home-automation controller.
// It is published retained on Topic.
type Discovery struct {
	Topic  string
	Config DiscoveryConfig
}

type DiscoveryConfig struct {
	Name          string `json:"name"`
	DeviceClass   string `json:"device_class"`
	Unit          string `json:"unit_of_measurement"`
	StateTopic    string `json:"state_topic"`
	ValueTemplate string `json:"value_template"`
	UniqueID      string `json:"unique_id"`
}

func (d Discovery) Payload() ([]byte, error) { return json.Marshal(d.Config) }

// Discoveries returns the temperature and humidity entities for cfg, under
// <prefix>/sensor/<device_id>_<quantity>/config.
func Discoveries(cfg types.TelemetryConfig) []Discovery {
	mk := func(quantity, name, class, unit, stateTopic string) Discovery {
		uid := cfg.DeviceID + "_" + quantity
		return Discovery{
			Topic: cfg.DiscoveryPrefix + "/sensor/" + uid + "/config",
			Config: DiscoveryConfig{
				Name:          name,
				DeviceClass:   class,
				Unit:          unit,
				StateTopic:    stateTopic,
				ValueTemplate: "{{ value_json." + quantity + " }}",
				UniqueID:      uid,
			},
		}
	}
	return []Discovery{
		mk("temperature", "Temperature", "temperature", "°C", cfg.TempStateTopic),
		mk("humidity", "Humidity", "humidity", "%", cfg.HumStateTopic),
	}
}

// discoveryMessages renders ds as retained messages.
func discoveryMessages(ds []Discovery) ([]Message, error) {
	out := make([]Message, 0, len(ds))
	for _, d := range ds {
		p, err := d.Payload()
		if err != nil {
			return nil, err
		}
		out = append(out, Message{Topic: d.Topic, Payload: p, Retained: true})
	}
	return out, nil
}
