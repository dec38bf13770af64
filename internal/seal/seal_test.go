package seal

import (
	"bytes"
	"testing"

	"github.com/aura-chain/aura-engine/core/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sig := bytes.Repeat([]byte{0xab}, 65)
	payload := Encode(7, sig)

	got, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Slot != 7 || !bytes.Equal(got.Signature, sig) {
		t.Fatalf("Decode = %+v, want slot=7 sig=%x", got, sig)
	}
}

func TestDecode_ShortPayload(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err != ErrUndecodable {
		t.Fatalf("Decode(short) err = %v, want ErrUndecodable", err)
	}
}

func TestPopAndDecode_CurrentForm(t *testing.T) {
	h := types.NewHeader(types.Hash{}, nil, 0)
	s := Seal{Slot: 3, Signature: bytes.Repeat([]byte{1}, 65)}
	h.PushDigest(NewDigestItem(s))

	got, err := PopAndDecode(h, false)
	if err != nil {
		t.Fatalf("PopAndDecode: %v", err)
	}
	if got.Slot != s.Slot || !bytes.Equal(got.Signature, s.Signature) {
		t.Fatalf("PopAndDecode = %+v, want %+v", got, s)
	}
	if len(h.Digest) != 0 {
		t.Fatal("PopAndDecode should have removed the digest item")
	}
}

func TestPopAndDecode_LegacyFormRequiresAllowOldSeals(t *testing.T) {
	s := Seal{Slot: 1, Signature: bytes.Repeat([]byte{2}, 65)}

	h := types.NewHeader(types.Hash{}, nil, 0)
	h.PushDigest(NewLegacyDigestItem(s))
	if _, err := PopAndDecode(h, false); err != ErrOldSealDisallowed {
		t.Fatalf("PopAndDecode(legacy, disallowed) err = %v, want ErrOldSealDisallowed", err)
	}

	h2 := types.NewHeader(types.Hash{}, nil, 0)
	h2.PushDigest(NewLegacyDigestItem(s))
	got, err := PopAndDecode(h2, true)
	if err != nil {
		t.Fatalf("PopAndDecode(legacy, allowed): %v", err)
	}
	if got.Slot != s.Slot {
		t.Fatalf("PopAndDecode(legacy) slot = %d, want %d", got.Slot, s.Slot)
	}
}

func TestPopAndDecode_Unsealed(t *testing.T) {
	h := types.NewHeader(types.Hash{}, nil, 0)
	if _, err := PopAndDecode(h, false); err != ErrNotSealed {
		t.Fatalf("PopAndDecode(unsealed) err = %v, want ErrNotSealed", err)
	}
}

func TestPopAndDecode_WrongEngineID(t *testing.T) {
	h := types.NewHeader(types.Hash{}, nil, 0)
	h.PushDigest(types.DigestItem{
		Kind:     types.DigestConsensus,
		EngineID: [4]byte{'o', 't', 'h', 'r'},
		Payload:  Encode(1, []byte{0xff}),
	})
	if _, err := PopAndDecode(h, false); err != ErrUndecodable {
		t.Fatalf("PopAndDecode(wrong engine) err = %v, want ErrUndecodable", err)
	}
}
