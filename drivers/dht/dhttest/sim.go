// Package dhttest provides a virtual-time DHT sensor that implements
// dht.Line. Time only advances through DelayMicroseconds, so reads are
// deterministic and independent of the host scheduler.
package dhttest

import (
	"math"
	"sync"

	"envmon-go/drivers/dht"
)

// Timing holds the pulse widths the simulated sensor emits, in µs.
type Timing struct {
	ResponseDelay uint32 // high after the host releases the line
	ResponseLow   uint32
	ResponseHigh  uint32
	BitLow        uint32
	ZeroHigh      uint32
	OneHigh       uint32
	TrailerLow    uint32
}

// DefaultTiming is a typical datasheet waveform.
var DefaultTiming = Timing{
	ResponseDelay: 4,
	ResponseLow:   80,
	ResponseHigh:  80,
	BitLow:        50,
	ZeroHigh:      26,
	OneHigh:       70,
	TrailerLow:    50,
}

// Minimum low hold the sensor recognises as a wake request.
const (
	MinWakeLow11 = 18000
	MinWakeLow22 = 1000
)

const forever = math.MaxUint64

// Sensor is a simulated DHT on one line.
type Sensor struct {
	mu sync.Mutex

	variant dht.Variant
	frame   [5]byte
	timing  Timing

	now     uint64
	dir     dht.Direction
	out     bool
	lowAt   uint64
	woken   bool
	started bool
	start   uint64
	segs    []uint64

	stallSeg int // -1 when no stall is armed
	reads    int
	wakes    []uint64
}

// NewSensor returns a sensor reporting humidity and temperature, both in
// tenths, encoded for v.
func NewSensor(v dht.Variant, humidity, temperature int16) *Sensor {
	return &Sensor{
		variant:  v,
		frame:    Encode(v, humidity, temperature),
		timing:   DefaultTiming,
		out:      true,
		stallSeg: -1,
	}
}

// Encode builds the frame a sensor of variant v would send.
func Encode(v dht.Variant, humidity, temperature int16) [5]byte {
	var f [5]byte
	switch v {
	case dht.Variant11:
		f[0] = byte(humidity / 10)
		if temperature > 0 {
			f[2] = byte(temperature / 10)
		}
	default:
		f[0], f[1] = byte(uint16(humidity)>>8), byte(humidity)
		mag := temperature
		if mag < 0 {
			mag = -mag
		}
		raw := uint16(mag) & 0x7FFF
		if temperature < 0 {
			raw |= 0x8000
		}
		f[2], f[3] = byte(raw>>8), byte(raw)
	}
	f[4] = f[0] + f[1] + f[2] + f[3]
	return f
}

// SetReading changes the values returned by subsequent reads.
func (s *Sensor) SetReading(humidity, temperature int16) {
	s.mu.Lock()
	s.frame = Encode(s.variant, humidity, temperature)
	s.mu.Unlock()
}

// SetFrame makes subsequent reads send f verbatim, checksum included.
func (s *Sensor) SetFrame(f [5]byte) {
	s.mu.Lock()
	s.frame = f
	s.mu.Unlock()
}

// CorruptChecksum flips the low bit of the checksum byte.
func (s *Sensor) CorruptChecksum() {
	s.mu.Lock()
	s.frame[4] ^= 0x01
	s.mu.Unlock()
}

// SetTiming replaces the emitted pulse widths.
func (s *Sensor) SetTiming(t Timing) {
	s.mu.Lock()
	s.timing = t
	s.mu.Unlock()
}

// StallAt makes the sensor stop toggling so that the decoder times out in
// phase p. bit is only used for the data bit phases.
func (s *Sensor) StallAt(p dht.Phase, bit int) {
	seg := -1
	switch p {
	case dht.PhaseResponseLow:
		seg = 0
	case dht.PhaseResponseHigh:
		seg = 1
	case dht.PhaseDataStart:
		seg = 2
	case dht.PhaseBitStart:
		seg = 3 + 2*bit
	case dht.PhaseBitEnd:
		seg = 4 + 2*bit
	}
	s.mu.Lock()
	s.stallSeg = seg
	s.mu.Unlock()
}

// ClearStall undoes StallAt.
func (s *Sensor) ClearStall() {
	s.mu.Lock()
	s.stallSeg = -1
	s.mu.Unlock()
}

// Reads counts the wake requests the sensor answered.
func (s *Sensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Now is the virtual time in µs.
func (s *Sensor) Now() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Wakes returns the virtual times of answered wake requests.
func (s *Sensor) Wakes() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.wakes...)
}

// ---- dht.Line ----

func (s *Sensor) SetDirection(dir dht.Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir == s.dir {
		return
	}
	s.dir = dir
	if dir == dht.Output {
		s.started = false
		return
	}
	if s.woken {
		s.woken = false
		s.begin()
	}
}

func (s *Sensor) Set(level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != dht.Output {
		return
	}
	switch {
	case s.out && !level:
		s.lowAt = s.now
		s.woken = false
	case !s.out && level:
		s.woken = s.now-s.lowAt >= s.minWake()
	}
	s.out = level
}

func (s *Sensor) Get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == dht.Output {
		return s.out
	}
	if !s.started {
		return true // pull-up
	}
	return s.levelAt(s.now - s.start)
}

func (s *Sensor) DelayMicroseconds(us uint32) {
	s.mu.Lock()
	s.now += uint64(us)
	s.mu.Unlock()
}

func (s *Sensor) minWake() uint64 {
	if s.variant == dht.Variant11 {
		return MinWakeLow11
	}
	return MinWakeLow22
}

// begin lays out the response waveform. Even segments are high, odd are
// low; the line idles high after the last one.
func (s *Sensor) begin() {
	t := s.timing
	segs := make([]uint64, 0, 84)
	segs = append(segs, uint64(t.ResponseDelay), uint64(t.ResponseLow), uint64(t.ResponseHigh))
	for i := 0; i < 40; i++ {
		high := t.ZeroHigh
		if s.frame[i/8]&(1<<(7-uint(i%8))) != 0 {
			high = t.OneHigh
		}
		segs = append(segs, uint64(t.BitLow), uint64(high))
	}
	segs = append(segs, uint64(t.TrailerLow))
	if s.stallSeg >= 0 && s.stallSeg < len(segs) {
		segs[s.stallSeg] = forever
	}
	s.segs = segs
	s.start = s.now
	s.started = true
	s.reads++
	s.wakes = append(s.wakes, s.now)
}

func (s *Sensor) levelAt(dt uint64) bool {
	var end uint64
	for i, d := range s.segs {
		if d == forever {
			return segLevel(i)
		}
		end += d
		if dt < end {
			return segLevel(i)
		}
	}
	return true
}

// segLevel: seg 0 high, 1 low, 2 high, then each bit is low (odd) then
// high (even), and the trailer (odd) is low.
func segLevel(i int) bool { return i%2 == 0 }

var _ dht.Line = (*Sensor)(nil)
