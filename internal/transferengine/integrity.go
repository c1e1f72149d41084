package transferengine

import (
	"io"

	"lukechampine.com/blake3"
)

// HashPrefix computes the blake3 digest of the first length bytes read
// from r, grounded on the teacher's sha256-over-the-partial-file check
// in internal/core/receiver.go, swapped for blake3 per SPEC_FULL.md's
// domain-stack wiring (wire.FileHash.Algorithm == "blake3").
func HashPrefix(r io.Reader, length uint64) ([]byte, error) {
	h := blake3.New(32, nil)
	if _, err := io.CopyN(h, r, int64(length)); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
