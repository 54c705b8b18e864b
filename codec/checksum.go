package codec

// Checksum computes the CRC-16/ARC of data. The 9x revisions store this
// over the whole file, little-endian, in the final two bytes.
func Checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendChecksum appends the little-endian CRC of data to data.
func AppendChecksum(data []byte) []byte {
	crc := Checksum(data)
	return append(data, byte(crc), byte(crc>>8))
}
