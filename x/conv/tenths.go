package conv

// Tenths writes n/10 with one decimal place ("23.1", "-0.5") into buf and
// returns the used slice. buf should be length >= 8 for int16.
func Tenths(buf []byte, n int32) []byte {
	if len(buf) < 4 {
		return buf[:0]
	}
	neg := n < 0
	u := uint32(n)
	if neg {
		u = uint32(-n)
	}
	i := len(buf)
	i--
	buf[i] = byte('0' + u%10)
	i--
	buf[i] = '.'
	u /= 10
	if u == 0 {
		i--
		buf[i] = '0'
	}
	for u > 0 && i > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}
