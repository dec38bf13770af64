// Package seal implements the engine's seal digest item: the encoding
// that attaches a slot number and a signature to a block header, in both
// the current wrapped form and the deprecated unwrapped legacy form.
package seal

import (
	"errors"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/ssz"
)

// EngineID is the 4-byte ASCII tag identifying this engine's consensus
// digest items in the header's digest log.
var EngineID = [4]byte{'a', 'u', 'r', 'a'}

// ErrNotSealed is returned when a header carries no digest items at all.
var ErrNotSealed = errors.New("seal: header is unsealed")

// ErrOldSealDisallowed is returned when the last digest item is the
// deprecated legacy seal variant and the caller's policy rejects it.
var ErrOldSealDisallowed = errors.New("seal: legacy seal format not allowed")

// ErrUndecodable is returned when a digest item claims to be a seal but its
// payload cannot be decoded into (slot, signature).
var ErrUndecodable = errors.New("seal: payload undecodable")

// Seal is the decoded contents of a seal digest item.
type Seal struct {
	Slot      uint64
	Signature []byte
}

// Encode produces the payload for a Consensus(engine_id, payload) digest
// item: encode(slot:u64) ++ encode(signature).
func Encode(slot uint64, signature []byte) []byte {
	out := ssz.MarshalUint64(slot)
	out = append(out, ssz.MarshalByteList(signature)...)
	return out
}

// Decode parses a seal payload of the form produced by Encode.
func Decode(payload []byte) (Seal, error) {
	if len(payload) < 8 {
		return Seal{}, ErrUndecodable
	}
	slot, err := ssz.UnmarshalUint64(payload[:8])
	if err != nil {
		return Seal{}, ErrUndecodable
	}
	sig := append([]byte(nil), payload[8:]...)
	return Seal{Slot: slot, Signature: sig}, nil
}

// NewDigestItem wraps a Seal into the current Consensus("aura", payload)
// digest item form. Writers produce only this form.
func NewDigestItem(s Seal) types.DigestItem {
	return types.DigestItem{
		Kind:     types.DigestConsensus,
		EngineID: EngineID,
		Payload:  Encode(s.Slot, s.Signature),
	}
}

// NewLegacyDigestItem wraps a Seal into the deprecated, unwrapped legacy
// digest item form. Only readers configured with allow_old_seals accept
// this form; writers never produce it.
func NewLegacyDigestItem(s Seal) types.DigestItem {
	return types.DigestItem{
		Kind:     types.DigestSeal,
		EngineID: EngineID,
		Payload:  Encode(s.Slot, s.Signature),
	}
}

// PopAndDecode pops the last digest item from header and decodes it as a
// seal, honoring allowOldSeals. header is mutated (its last digest item is
// removed) whenever it has one, whatever the outcome; callers that must
// preserve the original should operate on header.Clone().
func PopAndDecode(header *types.Header, allowOldSeals bool) (Seal, error) {
	item, ok := header.PopDigest()
	if !ok {
		return Seal{}, ErrNotSealed
	}
	switch item.Kind {
	case types.DigestConsensus:
		if item.EngineID != EngineID {
			return Seal{}, ErrUndecodable
		}
	case types.DigestSeal:
		if !allowOldSeals {
			return Seal{}, ErrOldSealDisallowed
		}
	default:
		return Seal{}, ErrUndecodable
	}
	return Decode(item.Payload)
}
