package topology

import (
	"fmt"

	"shardproxy/pkg/hashkit"
)

// Fingerprint identifies a primary/backup pair:
// crc16(primary)<<16 | crc16(backup) over the printable addresses.
type Fingerprint uint32

func PairFingerprint(primary, backup string) Fingerprint {
	return Fingerprint(uint32(hashkit.Checksum16([]byte(primary)))<<16 | uint32(hashkit.Checksum16([]byte(backup))))
}

// PairCandidates returns the fingerprint of the pair and of the pair with
// the roles swapped. A pair is known when either is admitted.
func PairCandidates(primary, backup string) (Fingerprint, Fingerprint) {
	return PairFingerprint(primary, backup), PairFingerprint(backup, primary)
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%08x", uint32(f))
}
