package hashkit

// CRC-16/XMODEM: polynomial 0x1021, zero init, no reflection.
var crc16Table [256]uint16

func init() {
	for i := range crc16Table {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// Checksum16 returns the CRC-16/XMODEM of key.
func Checksum16(key []byte) uint16 {
	var crc uint16
	for _, b := range key {
		crc = crc<<8 ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

func hashCRC16(key []byte) uint32 {
	return uint32(Checksum16(key))
}
