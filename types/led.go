package types

// ------------------------
// LED (boolean)
// ------------------------

type LEDParams struct {
	Pin       int    `json:"pin"        yaml:"pin"`
	ActiveLow bool   `json:"active_low" yaml:"active_low"`
	Initial   bool   `json:"initial"    yaml:"initial"`
	Domain    string `json:"domain"     yaml:"domain"` // default "io"
	Name      string `json:"name"       yaml:"name"`   // default device id
}

type LEDInfo struct {
	Pin int `json:"pin"`
}

type LEDValue struct {
	On bool `json:"on"`
}

// Controls
type LEDSet struct {
	On bool `json:"on"`
}
