package authority

import (
	"testing"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/internal/slotclock"
)

func mustSigner(t *testing.T) *signer.ECDSASigner {
	t.Helper()
	s, err := signer.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	return s
}

func TestSet_AuthorFor_RoundRobin(t *testing.T) {
	a, b, c := mustSigner(t), mustSigner(t), mustSigner(t)
	set := Set{a.AuthorityId(), b.AuthorityId(), c.AuthorityId()}

	cases := []struct {
		slot uint64
		want signer.AuthorityId
	}{
		{0, a.AuthorityId()},
		{1, b.AuthorityId()},
		{2, c.AuthorityId()},
		{3, a.AuthorityId()},
		{4, b.AuthorityId()},
	}
	for _, tc := range cases {
		got, ok := set.AuthorFor(slotclock.SlotNumber(tc.slot))
		if !ok {
			t.Fatalf("AuthorFor(%d): ok = false", tc.slot)
		}
		if got != tc.want {
			t.Fatalf("AuthorFor(%d) = %x, want %x", tc.slot, got, tc.want)
		}
	}
}

func TestSet_AuthorFor_Empty(t *testing.T) {
	var set Set
	_, ok := set.AuthorFor(slotclock.SlotNumber(0))
	if ok {
		t.Fatal("AuthorFor on empty set should report ok=false")
	}
}

func TestSet_IndexOfAndContains(t *testing.T) {
	a, b := mustSigner(t), mustSigner(t)
	set := Set{a.AuthorityId(), b.AuthorityId()}

	if idx := set.IndexOf(a.AuthorityId()); idx != 0 {
		t.Fatalf("IndexOf(a) = %d, want 0", idx)
	}
	if idx := set.IndexOf(b.AuthorityId()); idx != 1 {
		t.Fatalf("IndexOf(b) = %d, want 1", idx)
	}
	stranger := mustSigner(t)
	if idx := set.IndexOf(stranger.AuthorityId()); idx != -1 {
		t.Fatalf("IndexOf(stranger) = %d, want -1", idx)
	}
	if !set.Contains(a.AuthorityId()) {
		t.Fatal("Contains(a) = false, want true")
	}
	if set.Contains(stranger.AuthorityId()) {
		t.Fatal("Contains(stranger) = true, want false")
	}
}

func TestStaticProvider_IgnoresParentHash(t *testing.T) {
	a := mustSigner(t)
	set := Set{a.AuthorityId()}
	p := NewStaticProvider(set)

	got1, err := p.AuthoritiesAt(types.Hash{})
	if err != nil {
		t.Fatalf("AuthoritiesAt: %v", err)
	}
	got2, err := p.AuthoritiesAt(types.HexToHash("0xdeadbeef"))
	if err != nil {
		t.Fatalf("AuthoritiesAt: %v", err)
	}
	if len(got1) != 1 || got1[0] != a.AuthorityId() || len(got2) != 1 || got2[0] != a.AuthorityId() {
		t.Fatal("StaticProvider should return the same set regardless of parent hash")
	}
}
