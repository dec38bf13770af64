// Package authority defines the authority set and the round-robin author
// assignment rule shared by the authorship worker and the header verifier.
package authority

import (
	"errors"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/ssz"
)

// Set is an ordered sequence of authority identities. Index is significant:
// assignment at slot s is Set[s mod len(Set)].
type Set []signer.AuthorityId

// AuthorFor returns the authority assigned to the given slot, and false if
// the set is empty.
func (s Set) AuthorFor(slot slotclock.SlotNumber) (signer.AuthorityId, bool) {
	if len(s) == 0 {
		return signer.AuthorityId{}, false
	}
	idx := uint64(slot) % uint64(len(s))
	return s[idx], true
}

// IndexOf returns the position of id in the set, or -1 if absent.
func (s Set) IndexOf(id signer.AuthorityId) int {
	for i, a := range s {
		if a == id {
			return i
		}
	}
	return -1
}

// Contains reports whether id is a member of the set.
func (s Set) Contains(id signer.AuthorityId) bool {
	return s.IndexOf(id) >= 0
}

// Provider fetches the authority set in force at a given parent header
// hash. It is the engine's view onto the chain-storage collaborator that
// owns the real authority-set cache.
type Provider interface {
	AuthoritiesAt(parentHash types.Hash) (Set, error)
}

// StaticProvider returns the same authority set regardless of parent hash.
// It is useful for standalone operation and tests where the real
// authority-set cache (owned by the chain-storage collaborator) is absent.
type StaticProvider struct{ set Set }

// NewStaticProvider wraps a fixed authority set as a Provider.
func NewStaticProvider(set Set) StaticProvider { return StaticProvider{set: set} }

// AuthoritiesAt implements Provider, ignoring parentHash.
func (p StaticProvider) AuthoritiesAt(types.Hash) (Set, error) { return p.set, nil }

// ChangeEngineID tags digest items carrying an authority-set rotation,
// distinct from the seal engine ID so a header can carry both.
var ChangeEngineID = [4]byte{'a', 'u', 't', 'h'}

// ErrUndecodableChange is returned when a digest item claims to carry an
// authority-set change but its payload cannot be decoded.
var ErrUndecodableChange = errors.New("authority: change payload undecodable")

// Change is a new authority set superseding the current one, taking effect
// Delay blocks after the header carrying the digest.
type Change struct {
	Authorities Set
	Delay       uint64
}

// EncodeChange produces the payload for a Consensus(ChangeEngineID, payload)
// digest item: encode(delay:u64) ++ encode(list(authority_id, 33)).
func EncodeChange(c Change) []byte {
	elems := make([][]byte, len(c.Authorities))
	for i, a := range c.Authorities {
		elems[i] = append([]byte(nil), a[:]...)
	}
	out := ssz.MarshalUint64(c.Delay)
	out = append(out, ssz.MarshalList(elems)...)
	return out
}

// DecodeChange parses a Change payload of the form produced by EncodeChange.
func DecodeChange(payload []byte) (Change, error) {
	if len(payload) < 8 {
		return Change{}, ErrUndecodableChange
	}
	delay, err := ssz.UnmarshalUint64(payload[:8])
	if err != nil {
		return Change{}, ErrUndecodableChange
	}
	elems, err := ssz.UnmarshalList(payload[8:], len(signer.AuthorityId{}))
	if err != nil {
		return Change{}, ErrUndecodableChange
	}
	set := make(Set, len(elems))
	for i, e := range elems {
		var id signer.AuthorityId
		copy(id[:], e)
		set[i] = id
	}
	return Change{Authorities: set, Delay: delay}, nil
}

// NewChangeDigestItem wraps a Change into a Consensus(ChangeEngineID,
// payload) digest item.
func NewChangeDigestItem(c Change) types.DigestItem {
	return types.DigestItem{Kind: types.DigestConsensus, EngineID: ChangeEngineID, Payload: EncodeChange(c)}
}

// ExtractChange scans a header's digest log for an authority-set change
// digest item, returning nil if none is present.
func ExtractChange(header *types.Header) (*Change, error) {
	for _, item := range header.Digest {
		if item.Kind == types.DigestConsensus && item.EngineID == ChangeEngineID {
			c, err := DecodeChange(item.Payload)
			if err != nil {
				return nil, err
			}
			return &c, nil
		}
	}
	return nil, nil
}
