// Package equivstore implements the equivocation detector's auxiliary
// (author, slot) -> header store. A conflicting header claimed by the same
// author for the same slot must be detectable even across restarts, so
// this package backs that requirement with an embedded pebble LSM store,
// with an in-memory implementation for tests and for nodes that do not
// need cross-restart durability.
package equivstore

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/aura-chain/aura-engine/internal/signer"
)

// ErrNotFound is returned by Get when no record exists for (author, slot).
var ErrNotFound = errors.New("equivstore: no record for (author, slot)")

// Store persists a single header hash per (author, slot) pair, keyed so
// the record survives process restarts.
type Store interface {
	// Get returns the previously recorded header hash for (author, slot).
	Get(author signer.AuthorityId, slot uint64) (headerHash [32]byte, err error)
	// Put records headerHash as the seen header for (author, slot),
	// overwriting any previous record.
	Put(author signer.AuthorityId, slot uint64, headerHash [32]byte) error
	// DeleteBelow removes every record whose slot is <= watermark.
	DeleteBelow(watermark uint64) error
	// Close releases any underlying resources.
	Close() error
}

func key(author signer.AuthorityId, slot uint64) []byte {
	k := make([]byte, len(author)+8)
	copy(k, author[:])
	binary.BigEndian.PutUint64(k[len(author):], slot)
	return k
}

func slotFromKey(k []byte, authorLen int) uint64 {
	return binary.BigEndian.Uint64(k[authorLen:])
}

// PebbleStore is a Store backed by an embedded pebble key-value database,
// so equivocation records outlive process restarts.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (creating if necessary) a pebble-backed store at
// dir.
func OpenPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// Get implements Store.
func (s *PebbleStore) Get(author signer.AuthorityId, slot uint64) ([32]byte, error) {
	var out [32]byte
	v, closer, err := s.db.Get(key(author, slot))
	if err == pebble.ErrNotFound {
		return out, ErrNotFound
	}
	if err != nil {
		return out, err
	}
	defer closer.Close()
	copy(out[:], v)
	return out, nil
}

// Put implements Store.
func (s *PebbleStore) Put(author signer.AuthorityId, slot uint64, headerHash [32]byte) error {
	return s.db.Set(key(author, slot), headerHash[:], pebble.Sync)
}

// DeleteBelow implements Store.
func (s *PebbleStore) DeleteBelow(watermark uint64) error {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	authorLen := len(signer.AuthorityId{})
	batch := s.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		k := iter.Key()
		if len(k) != authorLen+8 {
			continue
		}
		if slotFromKey(k, authorLen) <= watermark {
			if err := batch.Delete(k, nil); err != nil {
				return err
			}
		}
	}
	return batch.Commit(pebble.Sync)
}

// Close implements Store.
func (s *PebbleStore) Close() error { return s.db.Close() }

// record is an in-memory entry used by MemStore.
type record struct {
	slot uint64
	hash [32]byte
}

// MemStore is an in-memory Store, used in tests and by nodes that accept
// losing equivocation history across a restart.
type MemStore struct {
	mu   sync.RWMutex
	data map[signer.AuthorityId]map[uint64][32]byte
}

// NewMemStore creates an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[signer.AuthorityId]map[uint64][32]byte)}
}

// Get implements Store.
func (m *MemStore) Get(author signer.AuthorityId, slot uint64) ([32]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byAuthor, ok := m.data[author]
	if !ok {
		return [32]byte{}, ErrNotFound
	}
	h, ok := byAuthor[slot]
	if !ok {
		return [32]byte{}, ErrNotFound
	}
	return h, nil
}

// Put implements Store.
func (m *MemStore) Put(author signer.AuthorityId, slot uint64, headerHash [32]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAuthor, ok := m.data[author]
	if !ok {
		byAuthor = make(map[uint64][32]byte)
		m.data[author] = byAuthor
	}
	byAuthor[slot] = headerHash
	return nil
}

// DeleteBelow implements Store.
func (m *MemStore) DeleteBelow(watermark uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for author, byAuthor := range m.data {
		for slot := range byAuthor {
			if slot <= watermark {
				delete(byAuthor, slot)
			}
		}
		if len(byAuthor) == 0 {
			delete(m.data, author)
		}
	}
	return nil
}

// Close implements Store.
func (m *MemStore) Close() error { return nil }
