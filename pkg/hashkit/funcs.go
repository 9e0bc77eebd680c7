package hashkit

import (
	"crypto/md5"
	"encoding/binary"
	"hash/crc32"
	"hash/fnv"
	"math/bits"
)

func hashOneAtATime(key []byte) uint32 {
	var h uint32
	for _, b := range key {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

func hashMD5(key []byte) uint32 {
	sum := md5.Sum(key)
	return uint32(sum[3])<<24 | uint32(sum[2])<<16 | uint32(sum[1])<<8 | uint32(sum[0])
}

// libmemcached compatible: the top half of the IEEE checksum, 15 bits.
func hashCRC32(key []byte) uint32 {
	return (crc32.ChecksumIEEE(key) >> 16) & 0x7fff
}

func hashCRC32a(key []byte) uint32 {
	return crc32.ChecksumIEEE(key)
}

func hashFNV1_64(key []byte) uint32 {
	h := fnv.New64()
	_, _ = h.Write(key)
	return uint32(h.Sum64())
}

// The 64-bit offset basis and prime are applied in 32-bit arithmetic.
func hashFNV1a_64(key []byte) uint32 {
	const (
		offset64 = 0xcbf29ce484222325
		prime64  = 0x100000001b3
	)
	h := uint32(offset64 & 0xffffffff)
	for _, b := range key {
		h ^= uint32(b)
		h *= uint32(prime64 & 0xffffffff)
	}
	return h
}

func hashFNV1_32(key []byte) uint32 {
	h := fnv.New32()
	_, _ = h.Write(key)
	return h.Sum32()
}

func hashFNV1a_32(key []byte) uint32 {
	h := fnv.New32a()
	_, _ = h.Write(key)
	return h.Sum32()
}

// Paul Hsieh's SuperFastHash. Trailing bytes are sign extended.
func hashHsieh(key []byte) uint32 {
	n := len(key)
	if n == 0 {
		return 0
	}

	h := uint32(n)
	for len(key) >= 4 {
		h += uint32(binary.LittleEndian.Uint16(key))
		tmp := uint32(binary.LittleEndian.Uint16(key[2:]))<<11 ^ h
		h = h<<16 ^ tmp
		h += h >> 11
		key = key[4:]
	}

	switch len(key) {
	case 3:
		h += uint32(binary.LittleEndian.Uint16(key))
		h ^= h << 16
		h ^= uint32(int8(key[2])) << 18
		h += h >> 11
	case 2:
		h += uint32(binary.LittleEndian.Uint16(key))
		h ^= h << 11
		h += h >> 17
	case 1:
		h += uint32(int8(key[0]))
		h ^= h << 10
		h += h >> 1
	}

	h ^= h << 3
	h += h >> 5
	h ^= h << 4
	h += h >> 17
	h ^= h << 25
	h += h >> 6
	return h
}

// MurmurHash2 seeded with the key length.
func hashMurmur(key []byte) uint32 {
	const (
		m = 0x5bd1e995
		r = 24
	)
	n := uint32(len(key))
	h := (0xdeadbeef * n) ^ n

	for len(key) >= 4 {
		k := binary.LittleEndian.Uint32(key)
		k *= m
		k ^= k >> r
		k *= m
		h *= m
		h ^= k
		key = key[4:]
	}

	switch len(key) {
	case 3:
		h ^= uint32(key[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(key[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(key[0])
		h *= m
	}

	h ^= h >> 13
	h *= m
	h ^= h >> 15
	return h
}

const jenkinsInitval = 13

// Bob Jenkins' lookup3 hashlittle.
func hashJenkins(key []byte) uint32 {
	a := uint32(0xdeadbeef) + uint32(len(key)) + jenkinsInitval
	b, c := a, a

	for len(key) > 12 {
		a += binary.LittleEndian.Uint32(key)
		b += binary.LittleEndian.Uint32(key[4:])
		c += binary.LittleEndian.Uint32(key[8:])
		a, b, c = jenkinsMix(a, b, c)
		key = key[12:]
	}

	switch len(key) {
	case 12:
		c += uint32(key[11]) << 24
		fallthrough
	case 11:
		c += uint32(key[10]) << 16
		fallthrough
	case 10:
		c += uint32(key[9]) << 8
		fallthrough
	case 9:
		c += uint32(key[8])
		fallthrough
	case 8:
		b += uint32(key[7]) << 24
		fallthrough
	case 7:
		b += uint32(key[6]) << 16
		fallthrough
	case 6:
		b += uint32(key[5]) << 8
		fallthrough
	case 5:
		b += uint32(key[4])
		fallthrough
	case 4:
		a += uint32(key[3]) << 24
		fallthrough
	case 3:
		a += uint32(key[2]) << 16
		fallthrough
	case 2:
		a += uint32(key[1]) << 8
		fallthrough
	case 1:
		a += uint32(key[0])
	case 0:
		return c
	}

	return jenkinsFinal(a, b, c)
}

func jenkinsMix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= bits.RotateLeft32(c, 4)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 6)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 8)
	b += a
	a -= c
	a ^= bits.RotateLeft32(c, 16)
	c += b
	b -= a
	b ^= bits.RotateLeft32(a, 19)
	a += c
	c -= b
	c ^= bits.RotateLeft32(b, 4)
	b += a
	return a, b, c
}

func jenkinsFinal(a, b, c uint32) uint32 {
	c ^= b
	c -= bits.RotateLeft32(b, 14)
	a ^= c
	a -= bits.RotateLeft32(c, 11)
	b ^= a
	b -= bits.RotateLeft32(a, 25)
	c ^= b
	c -= bits.RotateLeft32(b, 16)
	a ^= c
	a -= bits.RotateLeft32(c, 4)
	b ^= a
	b -= bits.RotateLeft32(a, 14)
	c ^= b
	c -= bits.RotateLeft32(b, 24)
	return c
}
