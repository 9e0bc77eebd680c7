// Package hashkit holds the key hash functions a pool can select and the
// distribution modes it can declare. Selectors are ordinals into fixed tables,
// so the numeric value of an Algo is stable across releases.
package hashkit

// Func hashes a key to the 32-bit value the distribution works on.
type Func func(key []byte) uint32

// Algo selects a hash function.
type Algo int

const (
	OneAtATime Algo = iota
	MD5
	CRC16
	CRC32
	CRC32a
	FNV1_64
	FNV1a_64
	FNV1_32
	FNV1a_32
	Hsieh
	Murmur
	Jenkins
)

var algoNames = [...]string{
	OneAtATime: "one_at_a_time",
	MD5:        "md5",
	CRC16:      "crc16",
	CRC32:      "crc32",
	CRC32a:     "crc32a",
	FNV1_64:    "fnv1_64",
	FNV1a_64:   "fnv1a_64",
	FNV1_32:    "fnv1_32",
	FNV1a_32:   "fnv1a_32",
	Hsieh:      "hsieh",
	Murmur:     "murmur",
	Jenkins:    "jenkins",
}

var algoFuncs = [...]Func{
	OneAtATime: hashOneAtATime,
	MD5:        hashMD5,
	CRC16:      hashCRC16,
	CRC32:      hashCRC32,
	CRC32a:     hashCRC32a,
	FNV1_64:    hashFNV1_64,
	FNV1a_64:   hashFNV1a_64,
	FNV1_32:    hashFNV1_32,
	FNV1a_32:   hashFNV1a_32,
	Hsieh:      hashHsieh,
	Murmur:     hashMurmur,
	Jenkins:    hashJenkins,
}

// AlgoNames returns the directive values accepted for "hash", in ordinal order.
func AlgoNames() []string {
	return append([]string(nil), algoNames[:]...)
}

func (a Algo) Valid() bool {
	return a >= 0 && int(a) < len(algoNames)
}

func (a Algo) String() string {
	if !a.Valid() {
		return "unknown"
	}
	return algoNames[a]
}

// Func resolves the selector through the lookup table. It returns nil for an
// out-of-range selector.
func (a Algo) Func() Func {
	if !a.Valid() {
		return nil
	}
	return algoFuncs[a]
}

// Distribution selects how keys are spread over a pool's servers.
type Distribution int

const (
	Ketama Distribution = iota
	Modula
	Random
)

var distNames = [...]string{
	Ketama: "ketama",
	Modula: "modula",
	Random: "random",
}

// DistributionNames returns the directive values accepted for "distribution".
func DistributionNames() []string {
	return append([]string(nil), distNames[:]...)
}

func (d Distribution) Valid() bool {
	return d >= 0 && int(d) < len(distNames)
}

func (d Distribution) String() string {
	if !d.Valid() {
		return "unknown"
	}
	return distNames[d]
}
