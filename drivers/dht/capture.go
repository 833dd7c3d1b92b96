package dht

// frameBits is the number of data bits the sensor sends after its preamble.
const frameBits = 40

// capture runs the wake pulse, the response preamble and the 40-bit data
// phase. f is only written once every bit has been captured.
func capture(line Line, cfg Config, f *Frame) error {
	// Wake: hold low, release high, then hand the line to the sensor.
	line.SetDirection(Output)
	line.Set(false)
	line.DelayMicroseconds(cfg.WakeHold)
	line.Set(true)
	line.DelayMicroseconds(cfg.WakeRelease)
	line.SetDirection(Input)

	// Preamble: ~80 µs low, ~80 µs high, then the first bit's low half.
	if _, ok := awaitPinState(line, cfg.Timeout, cfg.PollInterval, false); !ok {
		return &TimeoutError{Phase: PhaseResponseLow, Bit: -1}
	}
	if _, ok := awaitPinState(line, cfg.Timeout, cfg.PollInterval, true); !ok {
		return &TimeoutError{Phase: PhaseResponseHigh, Bit: -1}
	}
	if _, ok := awaitPinState(line, cfg.Timeout, cfg.PollInterval, false); !ok {
		return &TimeoutError{Phase: PhaseDataStart, Bit: -1}
	}

	var buf Frame
	for i := 0; i < frameBits; i++ {
		low, ok := awaitPinState(line, cfg.Timeout, cfg.PollInterval, true)
		if !ok {
			return &TimeoutError{Phase: PhaseBitStart, Bit: i}
		}
		high, ok := awaitPinState(line, cfg.Timeout, cfg.PollInterval, false)
		if !ok {
			return &TimeoutError{Phase: PhaseBitEnd, Bit: i}
		}
		if decideBit(low, high, cfg.BitThreshold) {
			buf[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	*f = buf
	return nil
}

// decideBit reports a 1 when the high half of a bit strictly outlasts its
// low half. A non-zero threshold selects the absolute rule instead.
func decideBit(low, high, threshold uint32) bool {
	if threshold != 0 {
		return high > threshold
	}
	return high > low
}
