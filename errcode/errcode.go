package errcode

import (
	"context"
	"errors"

	"envmon-go/drivers/dht"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                Code = "ok"
	Busy              Code = "busy"
	Unsupported       Code = "unsupported"
	InvalidParams     Code = "invalid_params"
	InvalidPayload    Code = "invalid_payload"
	UnknownCapability Code = "unknown_capability"
	HALNotReady       Code = "hal_not_ready"
	Conflict          Code = "conflict"

	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Timeout    Code = "timeout"

	// Sensor read failures.
	TimeoutResponseLow  Code = "timeout_response_low"
	TimeoutResponseHigh Code = "timeout_response_high"
	TimeoutDataStart    Code = "timeout_data_start"
	TimeoutBit          Code = "timeout_bit"
	ChecksumMismatch    Code = "checksum_mismatch"
	InvalidSample       Code = "invalid_sample"

	Error Code = "error" // generic fallback
)

// E wraps a Code with an operation and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return Error
}

// MapDriverErr maps low-level driver errors to a Code.
func MapDriverErr(err error) Code {
	if err == nil {
		return OK
	}
	var te *dht.TimeoutError
	if errors.As(err, &te) {
		switch te.Phase {
		case dht.PhaseResponseLow:
			return TimeoutResponseLow
		case dht.PhaseResponseHigh:
			return TimeoutResponseHigh
		case dht.PhaseDataStart:
			return TimeoutDataStart
		default:
			return TimeoutBit
		}
	}
	switch {
	case errors.Is(err, dht.ErrChecksum):
		return ChecksumMismatch
	case errors.Is(err, dht.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, dht.ErrUnknownVariant):
		return InvalidParams
	case errors.Is(err, dht.ErrOutOfRange):
		return InvalidSample
	}
	return Of(err)
}
