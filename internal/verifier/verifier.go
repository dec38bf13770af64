// Package verifier implements the header-verification state machine,
// including equivocation detection and deferral of future-slot headers.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/equivstore"
	"github.com/aura-chain/aura-engine/internal/seal"
	"github.com/aura-chain/aura-engine/internal/signer"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/ssz"
)

// MaxTimestampDriftSecs bounds how far ahead of the local wall clock a
// header's timestamp inherent may run. Verify sleeps out anything within
// this bound and rejects anything beyond it.
const MaxTimestampDriftSecs = 60

// Error kinds. These are sentinel values or typed wrappers, never
// bare strings, so callers can errors.Is/errors.As them.
var (
	ErrInherentData          = errors.New("verifier: inherent data")
	ErrInvalidAuthoritiesSet = errors.New("verifier: invalid or empty authority set")
	ErrInvalidSignature      = errors.New("verifier: bad signature on header")
	ErrBadSeal               = errors.New("verifier: bad seal")
)

// DeferredError indicates the header's slot is beyond the tolerated drift.
// The caller may retry later.
type DeferredError struct {
	Header *types.Header
	Slot   uint64
}

func (e *DeferredError) Error() string {
	return fmt.Sprintf("verifier: header for slot %d is too far in the future", e.Slot)
}

// EquivocationError carries both conflicting headers for the same
// (author, slot) pair.
type EquivocationError struct {
	Proof EquivocationProof
}

func (e *EquivocationError) Error() string {
	return fmt.Sprintf("verifier: equivocation by author at slot %d", e.Proof.Slot)
}

// EquivocationProof is (AuthorityId, SlotNumber, HeaderA, HeaderB) where the
// two headers are distinct but both sealed by the same author at the same
// slot.
type EquivocationProof struct {
	Author  signer.AuthorityId
	Slot    uint64
	HeaderA types.Hash
	HeaderB types.Hash
}

// Result is the outcome of checking a header: either it was Checked (and
// can proceed to import), or it was Deferred (too far in the future).
type Result struct {
	Header   *types.Header // seal stripped
	Seal     seal.Seal
	Deferred bool
	DeferSlot uint64
}

// ImportBlock is the contract passed to the block-import handler.
type ImportBlock struct {
	Origin       Origin
	Header       *types.Header // seal stripped from its digest
	Justification []byte
	PostDigests  []types.DigestItem // exactly one: the seal
	Body         [][]byte
	Finalized    bool
	Aux          map[string][]byte
	ForkChoice   ForkChoiceStrategy
}

// Origin tags where a block came from.
type Origin int

const (
	OriginNetworkInitialSync Origin = iota
	OriginNetworkBroadcast
	OriginOwn
	OriginFile
)

// ForkChoiceStrategy selects how the caller should react to a successful
// import. The strategy itself is an external collaborator's concern; this
// engine only carries the selector.
type ForkChoiceStrategy int

const (
	ForkChoiceLongestChain ForkChoiceStrategy = iota
	ForkChoiceCustom
)

// Config configures a HeaderVerifier.
type Config struct {
	// AllowOldSeals permits the deprecated legacy seal digest format.
	AllowOldSeals bool
	// EquivocationPruneFactor is the "design parameter" multiplier on
	// |authorities| used to compute the prune watermark.
	EquivocationPruneFactor uint64
}

// DefaultConfig returns the default verifier configuration.
func DefaultConfig() Config {
	return Config{AllowOldSeals: false, EquivocationPruneFactor: 2}
}

// ExtraVerifier is a caller-supplied hook run in parallel with check_header
// for domain-specific validation this engine does not itself perform.
type ExtraVerifier interface {
	Verify(header *types.Header) error
}

// InherentBundle is the mutable inherent-data view an InherentChecker
// validates a header against. Verify re-injects the seal's slot into it
// before calling CheckInherents.
type InherentBundle interface {
	slotclock.InherentBundle
	Put(identifier string, data []byte)
}

// FutureTimestampError is returned by an InherentChecker when a header's
// timestamp inherent is ahead of the checker's own clock by Drift. Verify
// sleeps out a drift within MaxTimestampDriftSecs rather than rejecting.
type FutureTimestampError struct {
	Drift time.Duration
}

func (e *FutureTimestampError) Error() string {
	return fmt.Sprintf("verifier: header timestamp %s ahead of local clock", e.Drift)
}

// InherentChecker is the optional runtime collaborator that validates a
// block's inherent extrinsics (timestamp foremost) against its header. A
// nil InherentChecker skips inherent checking entirely.
type InherentChecker interface {
	// ExtractInherents decodes the inherent bundle carried by a block body.
	ExtractInherents(body [][]byte) (InherentBundle, error)
	// CheckInherents validates header against bundle.
	CheckInherents(header *types.Header, bundle InherentBundle) error
}

// HeaderVerifier implements the header verify() operation.
type HeaderVerifier struct {
	cfg        Config
	authorities authority.Provider
	store      equivstore.Store
	extra      ExtraVerifier
	inherents  InherentChecker
	log        *log.Logger

	highestPrunedSlot uint64

	// sleep is time.Sleep, overridable in tests so a drift-tolerance test
	// does not have to actually block.
	sleep func(time.Duration)
}

// New creates a HeaderVerifier. inherents is optional: a nil InherentChecker
// skips the timestamp-inherent check entirely.
func New(cfg Config, authorities authority.Provider, store equivstore.Store, extra ExtraVerifier, inherents InherentChecker, logger *log.Logger) *HeaderVerifier {
	if logger == nil {
		logger = log.Default()
	}
	return &HeaderVerifier{
		cfg:         cfg,
		authorities: authorities,
		store:       store,
		extra:       extra,
		inherents:   inherents,
		log:         logger.Module("aura.verifier"),
		sleep:       time.Sleep,
	}
}

// Verify runs the full header-verification algorithm. body is optional; when
// present and an InherentChecker is configured, Verify re-injects the seal's
// slot into the extracted inherent bundle and runs the timestamp check.
// The returned *authority.Change, when non-nil, signals an authority-set
// rotation the caller should cache against the imported block.
func (v *HeaderVerifier) Verify(origin Origin, header *types.Header, body [][]byte, justification []byte, slotNow slotclock.SlotNumber) (*ImportBlock, *authority.Change, error) {
	authorities, err := v.authorities.AuthoritiesAt(header.ParentHash)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAuthoritiesSet, err)
	}
	if len(authorities) == 0 {
		return nil, nil, ErrInvalidAuthoritiesSet
	}

	var extraDone chan error
	if v.extra != nil {
		extraDone = make(chan error, 1)
		go func() { extraDone <- v.extra.Verify(header) }()
	}

	result, err := v.checkHeader(header, authorities, slotNow)
	if err != nil {
		return nil, nil, err
	}
	if result.Deferred {
		return nil, nil, &DeferredError{Header: header, Slot: result.DeferSlot}
	}
	if extraDone != nil {
		if err := <-extraDone; err != nil {
			return nil, nil, err
		}
	}

	if err := v.checkTimestamp(result.Header, body, result.Seal.Slot); err != nil {
		return nil, nil, err
	}

	change, err := authority.ExtractChange(result.Header)
	if err != nil {
		return nil, nil, fmt.Errorf("verifier: authority change digest: %w", err)
	}

	sealItem := seal.NewDigestItem(result.Seal)
	return &ImportBlock{
		Origin:        origin,
		Header:        result.Header,
		Justification: justification,
		PostDigests:   []types.DigestItem{sealItem},
		Finalized:     false,
		ForkChoice:    ForkChoiceLongestChain,
	}, change, nil
}

// checkTimestamp re-injects slot into the body's inherent bundle and asks
// the configured InherentChecker to validate header against it, sleeping
// out a tolerable future-timestamp drift rather than rejecting the header.
func (v *HeaderVerifier) checkTimestamp(header *types.Header, body [][]byte, slot uint64) error {
	if v.inherents == nil || body == nil {
		return nil
	}

	bundle, err := v.inherents.ExtractInherents(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInherentData, err)
	}
	bundle.Put(slotclock.InherentSlot, ssz.MarshalUint64(slot))

	err = v.inherents.CheckInherents(header, bundle)
	if err == nil {
		return nil
	}

	var future *FutureTimestampError
	if !errors.As(err, &future) {
		return fmt.Errorf("%w: %v", ErrInherentData, err)
	}
	if future.Drift > MaxTimestampDriftSecs*time.Second {
		return fmt.Errorf("%w: %v", ErrInherentData, err)
	}
	v.log.Warn("header timestamp ahead of local clock, sleeping out drift", "drift", future.Drift)
	v.sleep(future.Drift)
	return nil
}

// checkHeader pops the last digest item from a clone of the header,
// decodes and verifies the seal, and checks equivocation.
func (v *HeaderVerifier) checkHeader(header *types.Header, authorities authority.Set, slotNow slotclock.SlotNumber) (Result, error) {
	clone := header.Clone()

	s, err := seal.PopAndDecode(clone, v.cfg.AllowOldSeals)
	if err != nil {
		switch {
		case errors.Is(err, seal.ErrNotSealed):
			return Result{}, fmt.Errorf("%w: header is unsealed", ErrBadSeal)
		case errors.Is(err, seal.ErrOldSealDisallowed):
			return Result{}, fmt.Errorf("%w: legacy seal not allowed", ErrBadSeal)
		default:
			return Result{}, fmt.Errorf("%w: %v", ErrBadSeal, err)
		}
	}

	if s.Slot > uint64(slotNow)+1 {
		return Result{Deferred: true, DeferSlot: s.Slot, Header: clone}, nil
	}

	expectedAuthor, ok := authorities.AuthorFor(slotclock.SlotNumber(s.Slot))
	if !ok {
		return Result{}, ErrInvalidAuthoritiesSet
	}

	preHash := clone.Hash()
	msg := signingMessage(s.Slot, preHash)
	if !signer.Verify(expectedAuthor, msg, s.Signature) {
		return Result{}, fmt.Errorf("%w on header %s", ErrInvalidSignature, header.Hash().Hex())
	}

	if proof, equivocated := v.checkEquivocation(expectedAuthor, s.Slot, header.Hash(), len(authorities)); equivocated {
		return Result{}, &EquivocationError{Proof: proof}
	}

	return Result{Header: clone, Seal: s}, nil
}

// signingMessage reproduces the bytes signed by the authorship worker:
// encode(slot) ++ encode(pre_hash).
func signingMessage(slot uint64, preHash types.Hash) []byte {
	msg := ssz.MarshalUint64(slot)
	return append(msg, preHash[:]...)
}

// checkEquivocation prunes stale entries, looks up any prior claim for
// this (author, slot) pair, and records the new one.
func (v *HeaderVerifier) checkEquivocation(author signer.AuthorityId, slot uint64, headerHash types.Hash, numAuthorities int) (EquivocationProof, bool) {
	watermark := uint64(0)
	pruneWindow := v.cfg.EquivocationPruneFactor * uint64(numAuthorities)
	if slot > pruneWindow {
		watermark = slot - pruneWindow
	}
	if watermark > v.highestPrunedSlot {
		if err := v.store.DeleteBelow(watermark); err != nil {
			v.log.Warn("equivocation store prune failed", "err", err)
		} else {
			v.highestPrunedSlot = watermark
		}
	}

	existing, err := v.store.Get(author, slot)
	if errors.Is(err, equivstore.ErrNotFound) {
		if err := v.store.Put(author, slot, headerHash); err != nil {
			v.log.Warn("equivocation store write failed", "err", err)
		}
		return EquivocationProof{}, false
	}
	if err != nil {
		v.log.Warn("equivocation store read failed", "err", err)
		return EquivocationProof{}, false
	}
	if existing == [32]byte(headerHash) {
		return EquivocationProof{}, false
	}

	proof := EquivocationProof{
		Author:  author,
		Slot:    slot,
		HeaderA: types.Hash(existing),
		HeaderB: headerHash,
	}
	return proof, true
}
