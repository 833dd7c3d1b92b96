// Package dht reads DHT11 and DHT22/AM2301 humidity/temperature sensors over
// their single-wire bus by bit-banging a bidirectional GPIO:
//
//	h, t, err := dht.ReadRaw(dht.Variant22, line) // tenths of %RH and °C
//	hf, tf, err := dht.ReadFloat(dht.Variant22, line)
//
// A read blocks the caller for roughly 25 ms: a 20 ms wake pulse followed by
// the sensor's response preamble and 40 data bits. Every phase is a tight
// busy-poll of the line with a microsecond deadline. Nothing in the read path
// may yield to a scheduler; a preempted poll loop stretches the measured pulse
// widths and corrupts bit decisions. Callers must serialise access to one
// line and leave the sensor quiescent between reads (see MinInterval).
//
// The driver avoids floating-point on the hot path; ReadFloat is a thin
// conversion over ReadRaw.
package dht

import (
	"strings"
	"time"

	"tinygo.org/x/drivers"
)

// Variant selects the payload encoding of the sensor family.
type Variant uint8

const (
	// Variant11 is the DHT11: integer %RH and non-negative integer °C.
	Variant11 Variant = iota
	// Variant22 is the DHT22/AM2301/AM2302: tenths with sign-magnitude °C.
	Variant22
)

func (v Variant) String() string {
	switch v {
	case Variant11:
		return "dht11"
	case Variant22:
		return "dht22"
	default:
		return "unknown"
	}
}

// ParseVariant maps a sensor model name to its Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dht11", "11":
		return Variant11, nil
	case "dht22", "22", "am2301", "am2302":
		return Variant22, nil
	default:
		return 0, ErrUnknownVariant
	}
}

// MinInterval is the quiescent time the sensor needs between two reads.
// The driver does not enforce it.
func (v Variant) MinInterval() time.Duration {
	if v == Variant11 {
		return 1 * time.Second
	}
	return 2 * time.Second
}

// Direction of the data line.
type Direction uint8

const (
	Input Direction = iota
	Output
)

// Line is the pin driver the decoder runs on. It is the only hardware
// dependency.
//
// DelayMicroseconds MUST busy-wait. Implementations built on a sleeping
// timer are too coarse for the 2 µs poll interval.
type Line interface {
	SetDirection(dir Direction)
	Set(level bool)
	Get() bool
	DelayMicroseconds(us uint32)
}

// Defaults mirror the sensor datasheet timings. All values are microseconds
// (one poll tick equals one microsecond of busy delay).
const (
	DefaultTimeout      = 85
	DefaultPollInterval = 2
	DefaultWakeHold     = 20 * 1000
	DefaultWakeRelease  = 40

	// LegacyBitThreshold is the absolute high-pulse threshold (ticks) used by
	// earlier fixed-threshold readers. Only used when selected through
	// Config.BitThreshold.
	LegacyBitThreshold = 40
)

// Config controls timing. All fields are optional.
type Config struct {
	// Timeout bounds each handshake phase and each half-bit. Default 85.
	Timeout uint32
	// PollInterval is the delay between two line samples. Default 2.
	PollInterval uint32
	// WakeHold is how long the host drives the line low to wake the sensor.
	// Default 20 ms.
	WakeHold uint32
	// WakeRelease is how long the host drives the line high before handing
	// it to the sensor. Default 40.
	WakeRelease uint32
	// BitThreshold, when non-zero, replaces the relative bit decision with
	// "high pulse longer than BitThreshold ticks". Zero keeps the
	// self-calibrating comparison of the high pulse against the low pulse.
	BitThreshold uint32
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.WakeHold == 0 {
		c.WakeHold = DefaultWakeHold
	}
	if c.WakeRelease == 0 {
		c.WakeRelease = DefaultWakeRelease
	}
	return c
}

// Device binds a sensor variant to a line. It caches the last good reading
// for the drivers.Sensor accessors; ReadRaw and ReadFloat do not depend on it.
type Device struct {
	line    Line
	Variant Variant

	cfg         Config
	humidity    int16 // tenths of %RH
	temperature int16 // tenths of °C
}

var _ drivers.Sensor = (*Device)(nil)

// New creates a Device. It does not touch the line.
func New(line Line, v Variant) Device {
	return Device{
		line:    line,
		Variant: v,
		cfg:     Config{}.withDefaults(),
	}
}

// Configure applies optional timing overrides. Zero fields keep defaults.
func (d *Device) Configure(cfgs ...Config) {
	if len(cfgs) > 0 {
		d.cfg = cfgs[0].withDefaults()
		return
	}
	d.cfg = Config{}.withDefaults()
}

// Config returns the effective timing configuration.
func (d *Device) Config() Config { return d.cfg }

// ReadRaw performs one full read and returns humidity and temperature in
// tenths of a unit.
func (d *Device) ReadRaw() (humidity, temperature int16, err error) {
	if d.cfg.Timeout == 0 {
		d.Configure()
	}
	return readRaw(d.Variant, d.line, d.cfg)
}

// ReadFloat performs one full read and returns %RH and °C.
func (d *Device) ReadFloat() (humidity, temperature float32, err error) {
	h, t, err := d.ReadRaw()
	if err != nil {
		return 0, 0, err
	}
	return toFloat(h, t)
}

// Update implements drivers.Sensor. Any request for temperature or humidity
// performs one read; both values are refreshed together.
func (d *Device) Update(which drivers.Measurement) error {
	if which&(drivers.Temperature|drivers.Humidity) == 0 {
		return nil
	}
	h, t, err := d.ReadRaw()
	if err != nil {
		return err
	}
	d.humidity, d.temperature = h, t
	return nil
}

// Temperature returns the last updated temperature in milli-°C.
func (d *Device) Temperature() int32 { return int32(d.temperature) * 100 }

// Humidity returns the last updated relative humidity in hundredths of %RH.
func (d *Device) Humidity() int32 { return int32(d.humidity) * 10 }

// DeciCelsius returns the last updated temperature in tenths of °C.
func (d *Device) DeciCelsius() int16 { return d.temperature }

// DeciRelHumidity returns the last updated humidity in tenths of %RH.
func (d *Device) DeciRelHumidity() int16 { return d.humidity }

// ReadRaw performs one read with default timings.
func ReadRaw(v Variant, line Line) (humidity, temperature int16, err error) {
	return readRaw(v, line, Config{}.withDefaults())
}

// ReadFloat performs one read with default timings and converts to %RH and
// °C. It always goes through ReadRaw so both forms agree.
func ReadFloat(v Variant, line Line) (humidity, temperature float32, err error) {
	h, t, err := ReadRaw(v, line)
	if err != nil {
		return 0, 0, err
	}
	return toFloat(h, t)
}

func readRaw(v Variant, line Line, cfg Config) (int16, int16, error) {
	if v != Variant11 && v != Variant22 {
		return 0, 0, ErrUnknownVariant
	}
	if line == nil {
		return 0, 0, ErrNoLine
	}
	var f Frame
	if err := capture(line, cfg, &f); err != nil {
		return 0, 0, err
	}
	return f.Decode(v)
}

func toFloat(h, t int16) (float32, float32, error) {
	return float32(h) / 10.0, float32(t) / 10.0, nil
}
