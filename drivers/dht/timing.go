package dht

import "time"

// awaitPinState polls the line every interval ticks until it reads want or
// timeout ticks have been counted. On success elapsed is the number of ticks
// spent waiting, which is the width of the pulse that just ended.
//
// The loop must not yield: the tick count is only a duration while nothing
// else runs between two samples.
func awaitPinState(line Line, timeout, interval uint32, want bool) (elapsed uint32, ok bool) {
	if interval == 0 {
		interval = 1
	}
	if timeout == 0 {
		return 0, false
	}
	// i < timeout holds on every pass; compare against the room left so
	// i never wraps near the top of uint32.
	for i := uint32(0); ; i += interval {
		if line.Get() == want {
			return i, true
		}
		line.DelayMicroseconds(interval)
		if timeout-i <= interval {
			return 0, false
		}
	}
}

// BusyWait spins on the monotonic clock for us microseconds. It is the
// delay primitive for Line implementations that have no hardware
// microsecond delay of their own.
func BusyWait(us uint32) {
	if us == 0 {
		return
	}
	d := time.Duration(us) * time.Microsecond
	start := time.Now()
	for time.Since(start) < d {
	}
}
