package equivstore

import (
	"testing"

	"github.com/aura-chain/aura-engine/internal/signer"
)

func mustAuthority(t *testing.T) signer.AuthorityId {
	t.Helper()
	s, err := signer.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	return s.AuthorityId()
}

func TestMemStore_GetMissing(t *testing.T) {
	store := NewMemStore()
	author := mustAuthority(t)
	if _, err := store.Get(author, 1); err != ErrNotFound {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_PutGetRoundTrip(t *testing.T) {
	store := NewMemStore()
	author := mustAuthority(t)
	hash := [32]byte{1, 2, 3}

	if err := store.Put(author, 5, hash); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(author, 5)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != hash {
		t.Fatalf("Get = %x, want %x", got, hash)
	}
}

func TestMemStore_PutOverwrites(t *testing.T) {
	store := NewMemStore()
	author := mustAuthority(t)

	first := [32]byte{1}
	second := [32]byte{2}
	if err := store.Put(author, 1, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(author, 1, second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(author, 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != second {
		t.Fatalf("Get after overwrite = %x, want %x", got, second)
	}
}

func TestMemStore_DeleteBelow(t *testing.T) {
	store := NewMemStore()
	author := mustAuthority(t)

	for slot := uint64(1); slot <= 5; slot++ {
		if err := store.Put(author, slot, [32]byte{byte(slot)}); err != nil {
			t.Fatalf("Put(%d): %v", slot, err)
		}
	}
	if err := store.DeleteBelow(3); err != nil {
		t.Fatalf("DeleteBelow: %v", err)
	}

	for slot := uint64(1); slot <= 3; slot++ {
		if _, err := store.Get(author, slot); err != ErrNotFound {
			t.Fatalf("Get(%d) after DeleteBelow(3) err = %v, want ErrNotFound", slot, err)
		}
	}
	for slot := uint64(4); slot <= 5; slot++ {
		if _, err := store.Get(author, slot); err != nil {
			t.Fatalf("Get(%d) after DeleteBelow(3) err = %v, want nil", slot, err)
		}
	}
}

func TestMemStore_IsolatedByAuthor(t *testing.T) {
	store := NewMemStore()
	a := mustAuthority(t)
	b := mustAuthority(t)

	if err := store.Put(a, 1, [32]byte{0xaa}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Get(b, 1); err != ErrNotFound {
		t.Fatalf("Get(b, same slot as a) err = %v, want ErrNotFound", err)
	}
}
