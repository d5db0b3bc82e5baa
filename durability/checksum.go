package durability

import "golang.org/x/crypto/blake2b"

// ChecksumSize is the width, in bytes, of the trailer Checksum writes.
const ChecksumSize = 8

// Checksum computes an 8-byte digest of data for detecting a torn write
// after an unclean shutdown: a record whose stored checksum doesn't
// match its payload was caught mid-flush and must be treated as invalid,
// the same role the reference library gives the `valid` bit on
// PBCombRequest but extended to cover the record body itself, not just
// the request slot. The engines in this module neither write nor check
// it.
func Checksum(data []byte) [ChecksumSize]byte {
	full := blake2b.Sum512(data)
	var out [ChecksumSize]byte
	copy(out[:], full[:ChecksumSize])
	return out
}

// Verify reports whether want matches Checksum(data).
func Verify(data []byte, want [ChecksumSize]byte) bool {
	return Checksum(data) == want
}
