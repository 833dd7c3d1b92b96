package types

// ------------------------
// Capability addressing & kinds
// ------------------------

type Kind string

const (
	KindLED         Kind = "led"
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
)

// CapabilityAddress identifies a public capability on the bus.
type CapabilityAddress struct {
	Domain string `json:"domain" yaml:"domain"` // e.g. "io","env"
	Kind   Kind   `json:"kind"   yaml:"kind"`
	Name   string `json:"name"   yaml:"name"`
}
