package dht

// Frame is the 5-byte payload of one read: humidity (2 bytes), temperature
// (2 bytes) and a checksum over the first four.
type Frame [5]byte

// Sum is the 8-bit sum of the four payload bytes.
func (f Frame) Sum() byte { return f[0] + f[1] + f[2] + f[3] }

// Valid reports whether the checksum byte matches Sum.
func (f Frame) Valid() bool { return f.Sum() == f[4] }

// Decode validates the checksum and converts the payload to tenths of %RH
// and tenths of °C for the given variant.
func (f Frame) Decode(v Variant) (humidity, temperature int16, err error) {
	if sum := f.Sum(); sum != f[4] {
		return 0, 0, &ChecksumError{Got: f[4], Want: sum}
	}
	switch v {
	case Variant11:
		// Integer resolution; the fractional bytes are ignored.
		return int16(f[0]) * 10, int16(f[2]) * 10, nil
	case Variant22:
		// Above 3276.7 %RH the reading would not fit int16; no sane
		// sensor sends that.
		if f[0]&0x80 != 0 {
			return 0, 0, ErrOutOfRange
		}
		humidity = int16(uint16(f[0])<<8 | uint16(f[1]))
		// Sign-magnitude: bit 15 is the sign, bits 0..14 the magnitude.
		raw := uint16(f[2])<<8 | uint16(f[3])
		temperature = int16(raw & 0x7FFF)
		if raw&0x8000 != 0 {
			temperature = -temperature
		}
		return humidity, temperature, nil
	default:
		return 0, 0, ErrUnknownVariant
	}
}
