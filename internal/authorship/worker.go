// Package authorship implements the per-slot authorship worker that
// fetches the authority set, decides whether this node should author,
// builds and seals a proposal, and submits it to the import handler.
package authorship

import (
	"context"
	"time"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/seal"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/internal/verifier"
	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/metrics"
)

// MaxEncodedProposalBytes is the block size limit: proposals exceeding this
// many encoded bytes are discarded before signing.
const MaxEncodedProposalBytes = 4*1024*1024 + 512

// Proposal is the (header, body) pair a Proposer builds.
type Proposal struct {
	Header *types.Header
	Body   [][]byte
}

// EncodedSize returns the proposal's approximate encoded size in bytes,
// used for the proposal size-limit check.
func (p Proposal) EncodedSize() int {
	n := len(p.Header.Extra)
	for _, item := range p.Header.Digest {
		n += len(item.Payload)
	}
	for _, chunk := range p.Body {
		n += len(chunk)
	}
	return n
}

// Proposer builds a block proposal for a given chain head and authority
// set, honoring a deadline.
type Proposer interface {
	Propose(ctx context.Context, parent *types.Header, authorities authority.Set, inherents InherentData, deadline time.Duration) (Proposal, error)
}

// InherentData is the non-transactional input bundle injected into a block
// at build time (timestamp, slot number, finalised hint).
type InherentData map[string][]byte

// SyncOracle reports whether the node considers itself caught up with the
// network. The authorship worker treats "offline" as a reason to skip
// authoring alone.
type SyncOracle interface {
	IsOffline() bool
}

// ImportHandler is the same handler the import queue's worker calls; the
// authorship worker calls it directly for locally produced blocks,
// bypassing the header verifier.
type ImportHandler interface {
	ImportBlock(block *verifier.ImportBlock, aux map[string][]byte) error
}

// Config configures the authorship worker.
type Config struct {
	ForceAuthoring bool
}

// Worker is the long-lived, clonable authorship worker driving the
// per-slot authoring loop on a scheduler thread.
type Worker struct {
	cfg         Config
	signer      signer.Signer
	authorities authority.Provider
	proposer    Proposer
	importer    ImportHandler
	oracle      SyncOracle
	log         *log.Logger
}

// New creates an authorship Worker.
func New(cfg Config, s signer.Signer, authorities authority.Provider, proposer Proposer, importer ImportHandler, oracle SyncOracle, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		cfg:         cfg,
		signer:      s,
		authorities: authorities,
		proposer:    proposer,
		importer:    importer,
		oracle:      oracle,
		log:         logger.Module("aura.authorship"),
	}
}

// Clone returns a shallow copy sharing the same signer, proposer, and
// importer, safe to hand to a second scheduler thread.
func (w *Worker) Clone() *Worker {
	clone := *w
	return &clone
}

// OnStart is the one-time registration hook invoked once per node startup
//. In this engine the inherent-data provider is supplied by an
// external collaborator; this records nothing beyond logging.
func (w *Worker) OnStart(slotDuration slotclock.SlotDuration) {
	w.log.Info("authorship worker starting", "slot_duration_ms", uint64(slotDuration))
}

// OnSlot runs the per-slot algorithm. It never returns an error
// to the caller: every failure is logged and treated as a successful
// no-op, so a failing slot cannot crash the scheduler.
func (w *Worker) OnSlot(ctx context.Context, chainHead *types.Header, info slotclock.SlotInfo) {
	authorities, err := w.authorities.AuthoritiesAt(chainHead.Hash())
	if err != nil {
		w.log.Warn("failed to fetch authority set, skipping slot", "slot", info.Slot, "err", err)
		metrics.SlotsSkipped.Inc()
		return
	}

	if !w.cfg.ForceAuthoring && w.oracle != nil && w.oracle.IsOffline() && len(authorities) > 1 {
		w.log.Debug("sync oracle reports offline, skipping slot", "slot", info.Slot)
		metrics.SlotsSkipped.Inc()
		return
	}

	expected, ok := authorities.AuthorFor(info.Slot)
	if !ok {
		w.log.Warn("empty authority set, skipping slot", "slot", info.Slot)
		metrics.SlotsSkipped.Inc()
		return
	}
	if expected != w.signer.AuthorityId() {
		metrics.SlotsSkipped.Inc()
		return
	}

	start := time.Now()
	deadline := slotclock.RemainingInSlot(info, start)
	proposeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	inherents := InherentData{
		slotclock.InherentSlot: uint64ToBytes(uint64(info.Slot)),
	}
	proposal, err := w.proposer.Propose(proposeCtx, chainHead, authorities, inherents, deadline)
	metrics.ProposalTime.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		w.log.Warn("propose failed, skipping slot", "slot", info.Slot, "err", err)
		metrics.SlotsSkipped.Inc()
		return
	}

	// Re-check the current slot; a block built too late to still land in
	// the slot it was authored for is discarded rather than imported.
	nowSlot := info.Slot
	if elapsed := time.Since(info.StartTime); elapsed > 0 && info.Duration > 0 {
		nowSlot += slotclock.SlotNumber(uint64(elapsed.Milliseconds()) / uint64(info.Duration))
	}
	if nowSlot != info.Slot {
		w.log.Info("discarding block built too late", "built_for_slot", info.Slot, "now_slot", nowSlot)
		metrics.SlotsSkipped.Inc()
		return
	}

	if proposal.EncodedSize() > MaxEncodedProposalBytes {
		w.log.Warn("discarding oversized proposal", "slot", info.Slot, "size", proposal.EncodedSize())
		metrics.SlotsSkipped.Inc()
		return
	}

	preHash := proposal.Header.Hash()
	msg := signingMessage(uint64(info.Slot), preHash)
	sig, err := w.signer.Sign(msg)
	if err != nil {
		w.log.Error("failed to sign proposal, skipping slot", "slot", info.Slot, "err", err)
		metrics.SlotsSkipped.Inc()
		return
	}

	sealedHeader := proposal.Header.Clone()
	sealItem := seal.NewDigestItem(seal.Seal{Slot: uint64(info.Slot), Signature: sig})
	sealedHeader.PushDigest(sealItem)

	block := &verifier.ImportBlock{
		Origin:      verifier.OriginOwn,
		Header:      proposal.Header,
		PostDigests: []types.DigestItem{sealItem},
		Finalized:   false,
		ForkChoice:  verifier.ForkChoiceLongestChain,
	}
	if err := w.importer.ImportBlock(block, nil); err != nil {
		w.log.Warn("import of own block failed", "slot", info.Slot, "err", err)
		return
	}
	w.log.Info("authored block", "slot", info.Slot, "hash", sealedHeader.Hash().Hex())
	metrics.SlotsAuthored.Inc()
}

func signingMessage(slot uint64, preHash types.Hash) []byte {
	msg := make([]byte, 8, 8+len(preHash))
	putUint64LE(msg, slot)
	return append(msg, preHash[:]...)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	putUint64LE(b, v)
	return b
}
