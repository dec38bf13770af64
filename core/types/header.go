package types

import (
	"sync/atomic"

	"github.com/holiman/uint256"
)

// DigestItemKind distinguishes the shapes a digest item can take in a
// header's digest sequence.
type DigestItemKind uint8

const (
	// DigestOther is an opaque digest item not interpreted by this engine.
	DigestOther DigestItemKind = iota
	// DigestConsensus wraps an engine-tagged payload: Consensus(engine_id, payload).
	// This is the only form new headers produce.
	DigestConsensus
	// DigestSeal is the deprecated, unwrapped legacy seal variant: Seal(slot, signature)
	// encoded directly as the item's payload with no engine-id wrapper semantics
	// beyond the EngineID field itself. Readers must still recognise it.
	DigestSeal
)

// DigestItem is one entry in a header's mutable digest sequence. The
// consensus-seal payload (slot number + signature) lives opaquely in
// Payload; callers that care about its structure decode it themselves.
type DigestItem struct {
	Kind     DigestItemKind
	EngineID [4]byte
	Payload  []byte
}

// Header carries parent linkage, a block number, and a mutable ordered
// digest sequence. The last digest item can be popped, and new items
// pushed, without needing to recompute any other header field.
type Header struct {
	ParentHash Hash
	Number     *uint256.Int
	Time       uint64
	Extra      []byte
	Digest     []DigestItem

	// hash caches the header's hash. It is invalidated whenever Digest is
	// mutated via PushDigest/PopDigest so a stale hash is never observed.
	hash atomic.Pointer[Hash]
}

// NewHeader returns a Header with an initialized Number and empty digest.
func NewHeader(parentHash Hash, number *uint256.Int, timestamp uint64) *Header {
	if number == nil {
		number = new(uint256.Int)
	}
	return &Header{
		ParentHash: parentHash,
		Number:     number,
		Time:       timestamp,
	}
}

// Clone returns a deep copy of the header, safe to mutate independently of
// the original (including via PopDigest/PushDigest). The clone starts with
// an empty hash cache regardless of whether the original had computed one.
func (h *Header) Clone() *Header {
	c := &Header{
		ParentHash: h.ParentHash,
		Time:       h.Time,
	}
	if h.Number != nil {
		c.Number = new(uint256.Int).Set(h.Number)
	}
	if h.Extra != nil {
		c.Extra = append([]byte(nil), h.Extra...)
	}
	if h.Digest != nil {
		c.Digest = append([]DigestItem(nil), h.Digest...)
	}
	return c
}

// PushDigest appends a digest item to the header, invalidating the cached
// hash.
func (h *Header) PushDigest(item DigestItem) {
	h.Digest = append(h.Digest, item)
	h.hash.Store(nil)
}

// PopDigest removes and returns the last digest item, invalidating the
// cached hash. Returns false if the digest sequence is empty.
func (h *Header) PopDigest() (DigestItem, bool) {
	if len(h.Digest) == 0 {
		return DigestItem{}, false
	}
	last := h.Digest[len(h.Digest)-1]
	h.Digest = h.Digest[:len(h.Digest)-1]
	h.hash.Store(nil)
	return last, true
}

// Hash returns the hash of the header's current contents, including
// whatever digest items are presently attached. The result is cached until
// the digest sequence is next mutated.
func (h *Header) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	hash := computeHeaderHash(h)
	h.hash.Store(&hash)
	return hash
}
