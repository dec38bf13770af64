package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// computeHeaderHash hashes the header's current field values, including
// whatever digest items are presently attached. It never imports the
// signing/verification layers above this package: encoding and hashing are
// self-contained here so that core/types has no dependency on them.
func computeHeaderHash(h *Header) Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write(h.ParentHash[:])

	var numBuf [32]byte
	if h.Number != nil {
		b := h.Number.Bytes32()
		numBuf = b
	}
	d.Write(numBuf[:])

	var timeBuf [8]byte
	binary.LittleEndian.PutUint64(timeBuf[:], h.Time)
	d.Write(timeBuf[:])

	d.Write(h.Extra)

	for _, item := range h.Digest {
		d.Write([]byte{byte(item.Kind)})
		d.Write(item.EngineID[:])
		d.Write(item.Payload)
	}

	var hash Hash
	copy(hash[:], d.Sum(nil))
	return hash
}
