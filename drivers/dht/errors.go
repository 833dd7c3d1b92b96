package dht

import (
	"errors"

	"envmon-go/x/conv"
)

// Errors returned by the driver. Timeout and checksum failures are wrapped in
// TimeoutError and ChecksumError; match them with errors.Is.
var (
	ErrTimeout        = errors.New("dht: timeout")
	ErrChecksum       = errors.New("dht: checksum mismatch")
	ErrUnknownVariant = errors.New("dht: unknown sensor variant")
	ErrNoLine         = errors.New("dht: nil line")
	ErrOutOfRange     = errors.New("dht: humidity out of range")
)

// Phase names the step of a read that missed its deadline.
type Phase uint8

const (
	// PhaseResponseLow: the sensor never pulled the line low after the wake pulse.
	PhaseResponseLow Phase = iota + 1
	// PhaseResponseHigh: the response low pulse never ended.
	PhaseResponseHigh
	// PhaseDataStart: the response high pulse never ended.
	PhaseDataStart
	// PhaseBitStart: the low half of a data bit never ended.
	PhaseBitStart
	// PhaseBitEnd: the high half of a data bit never ended.
	PhaseBitEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseResponseLow:
		return "response_low"
	case PhaseResponseHigh:
		return "response_high"
	case PhaseDataStart:
		return "data_start"
	case PhaseBitStart:
		return "bit_start"
	case PhaseBitEnd:
		return "bit_end"
	default:
		return "unknown"
	}
}

// TimeoutError reports which phase timed out. Bit is the data bit index
// (0..39) for PhaseBitStart and PhaseBitEnd, and -1 otherwise.
type TimeoutError struct {
	Phase Phase
	Bit   int
}

func (e *TimeoutError) Error() string {
	if e.Bit >= 0 {
		return "dht: timeout awaiting " + e.Phase.String() + " of bit " + itoaBit(e.Bit)
	}
	return "dht: timeout awaiting " + e.Phase.String()
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ChecksumError carries the received checksum byte and the sum computed over
// the four payload bytes.
type ChecksumError struct {
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return "dht: checksum mismatch: got 0x" + hex8(e.Got) + ", computed 0x" + hex8(e.Want)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrChecksum }

// Small formatters so the error path pulls in neither fmt nor strconv.

func itoaBit(n int) string {
	var buf [20]byte
	return string(conv.Itoa(buf[:], int64(n)))
}

func hex8(b byte) string {
	const digits = "0123456789ABCDEF"
	return string([]byte{digits[b>>4], digits[b&0x0F]})
}
