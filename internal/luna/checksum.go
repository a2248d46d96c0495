package luna

// Checksum returns the 8-bit additive checksum of b. It is the sum of all
// bytes modulo 256; an empty slice yields 0.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}
