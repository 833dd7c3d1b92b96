package core

// ---- GPIO handles ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// PinFunc is the use a device claims a pin for.
type PinFunc uint8

const (
	FuncGPIOIn PinFunc = iota
	FuncGPIOOut
	// FuncSingleWire is a bidirectional, open-drain style data line.
	FuncSingleWire
)

func (f PinFunc) String() string {
	switch f {
	case FuncGPIOIn:
		return "gpio_in"
	case FuncGPIOOut:
		return "gpio_out"
	case FuncSingleWire:
		return "single_wire"
	default:
		return "unknown"
	}
}

type GPIOHandle interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool) error
	Set(bool)
	Get() bool
	Toggle()
}

// PinHandle is what ClaimPin hands out. Providers may add optional methods
// that devices feature-detect (for example a native single-wire line).
type PinHandle interface {
	Number() int
	AsGPIO() GPIOHandle
}

// ---- Device → HAL telemetry (single shape) ----
// By default, an Event represents a "value-like" update for a capability that
// HAL should publish to .../value (retained). If IsEvent is true, HAL instead
// publishes to .../event (non-retained). Err, when non-empty, causes HAL to
// publish only .../status=degraded (retained).

type Event struct {
	Addr     CapAddr
	Payload  any    // typed value payload (e.g. types.TemperatureValue)
	TSms     int64  // ms timestamp
	Err      string // errcode string, e.g. "checksum_mismatch"
	IsEvent  bool   // true => publish to .../event (non-retained)
	EventTag string // optional subtopic tag for events
}

// ---- Event emission (devices → HAL) ----

type EventEmitter interface {
	// Emit tries to enqueue an Event for HAL publication.
	// It must be non-blocking; false indicates a drop under pressure.
	Emit(ev Event) bool
}

// ---- HAL-injected resources ----

type Resources struct {
	Reg ResourceRegistry
	Pub EventEmitter // provided by HAL; devices use it to emit values/events
}

// ResourceRegistry arbitrates pin ownership. Claims are exclusive:
// a second claim on a held pin fails with errcode.PinInUse, an unknown pin
// with errcode.UnknownPin.
type ResourceRegistry interface {
	ClaimPin(devID string, pin int, fn PinFunc) (PinHandle, error)
	ReleasePin(devID string, pin int)
}
