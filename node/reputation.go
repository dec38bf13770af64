package node

import (
	"sort"
	"sync"
	"time"
)

// PeerRecord stores the accumulated reputation and ban state for a single
// peer, scored in the same signed int32 units as the engine's own
// Reputation* deltas.
type PeerRecord struct {
	PeerID      string
	Score       int64
	Penalties   int
	LastUpdated time.Time
	BannedUntil time.Time // zero value means not banned
}

// IsBanned returns true if the peer is currently banned.
func (r *PeerRecord) IsBanned() bool {
	if r.BannedUntil.IsZero() {
		return false
	}
	return time.Now().Before(r.BannedUntil)
}

// ReputationConfig configures a ReputationBook.
type ReputationConfig struct {
	BanThreshold int64         // score at or below which a peer is auto-banned
	BanDuration  time.Duration // how long an auto-ban lasts
}

// DefaultReputationConfig mirrors the ban threshold a single BadBlock report
// would cross on its own.
func DefaultReputationConfig() ReputationConfig {
	return ReputationConfig{
		BanThreshold: -(1 << 29),
		BanDuration:  10 * time.Minute,
	}
}

// ReputationBook accumulates the peer-reputation deltas the header verifier
// and import queue report and derives a ban decision from the running
// total. It is offered as a convenience a host's importqueue.Link
// implementation can delegate ReportPeer to; the engine itself never bans
// or disconnects peers, since peer connection management is an external
// collaborator's responsibility.
type ReputationBook struct {
	mu      sync.RWMutex
	cfg     ReputationConfig
	records map[string]*PeerRecord
}

// NewReputationBook creates an empty ReputationBook.
func NewReputationBook(cfg ReputationConfig) *ReputationBook {
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = 10 * time.Minute
	}
	return &ReputationBook{cfg: cfg, records: make(map[string]*PeerRecord)}
}

func (rb *ReputationBook) getOrCreate(peerID string) *PeerRecord {
	rec, ok := rb.records[peerID]
	if !ok {
		rec = &PeerRecord{PeerID: peerID}
		rb.records[peerID] = rec
	}
	return rec
}

// Adjust applies a reputation delta to a peer, matching the signature of
// importqueue.Link.ReportPeer so a host can wire it directly.
func (rb *ReputationBook) Adjust(peerID string, delta int32, reason string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rec := rb.getOrCreate(peerID)
	rec.Score += int64(delta)
	rec.Penalties++
	rec.LastUpdated = time.Now()

	if rec.BannedUntil.IsZero() && rec.Score <= rb.cfg.BanThreshold {
		rec.BannedUntil = time.Now().Add(rb.cfg.BanDuration)
	}
}

// Score returns the current accumulated score for a peer, 0 if untracked.
func (rb *ReputationBook) Score(peerID string) int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rec, ok := rb.records[peerID]; ok {
		return rec.Score
	}
	return 0
}

// IsAllowed returns true if the peer is not currently banned. An untracked
// peer is always allowed.
func (rb *ReputationBook) IsAllowed(peerID string) bool {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	rec, ok := rb.records[peerID]
	if !ok {
		return true
	}
	return !rec.IsBanned()
}

// Record returns a copy of a peer's reputation record, or nil if untracked.
func (rb *ReputationBook) Record(peerID string) *PeerRecord {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	rec, ok := rb.records[peerID]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// WorstPeers returns the n lowest-scored peers, sorted ascending.
func (rb *ReputationBook) WorstPeers(n int) []PeerRecord {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	list := make([]PeerRecord, 0, len(rb.records))
	for _, rec := range rb.records {
		list = append(list, *rec)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Score < list[j].Score })
	if n > len(list) {
		n = len(list)
	}
	if n < 0 {
		n = 0
	}
	return list[:n]
}

// PeerCount returns the total number of tracked peers (including banned).
func (rb *ReputationBook) PeerCount() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.records)
}

// CleanExpiredBans clears bans whose duration has elapsed, returning the
// peer IDs that were unbanned.
func (rb *ReputationBook) CleanExpiredBans() []string {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	now := time.Now()
	var cleaned []string
	for id, rec := range rb.records {
		if !rec.BannedUntil.IsZero() && now.After(rec.BannedUntil) {
			rec.BannedUntil = time.Time{}
			cleaned = append(cleaned, id)
		}
	}
	return cleaned
}

// RemovePeer deletes a peer's record entirely, e.g. once it disconnects.
func (rb *ReputationBook) RemovePeer(peerID string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	delete(rb.records, peerID)
}
