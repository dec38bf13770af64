// Package importqueue implements the two-stage import pipeline that
// decouples block arrival (network, own authorship, on-disk replay) from
// the serial work of verifying and importing a block into the chain.
//
// A Dispatcher selects over two channels: work from callers (block batches
// and standalone justification / finality-proof imports) and results flowing
// back from the worker. It hands block batches, in arrival order, to a
// single serial Worker that verifies and imports them; justification and
// finality-proof imports run on their own goroutine.
package importqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/slotclock"
	"github.com/aura-chain/aura-engine/internal/verifier"
	"github.com/aura-chain/aura-engine/log"
	"github.com/aura-chain/aura-engine/metrics"
)

// WorkerChannelCapacity is the bounded Dispatcher -> Worker channel depth.
// The dispatcher keeps batches it has not yet handed on in an unbounded
// pending list, so a slow worker does not hold back ImportBlocks callers.
const WorkerChannelCapacity = 4

// Reputation deltas applied via Link.ReportPeer. Signed so a
// caller can also reward a peer, though this engine only ever penalizes.
const (
	ReputationIncompleteHeader  int32 = -(1 << 20)
	ReputationVerificationFail  int32 = -(1 << 20)
	ReputationBadJustification  int32 = -(1 << 16)
	ReputationBadBlock          int32 = -(1 << 29)
)

var (
	ErrQueueStopped            = errors.New("importqueue: stopped")
	ErrEmptyBatch              = errors.New("importqueue: empty batch")
	ErrMissingHeader           = errors.New("importqueue: incoming block has no header")
	ErrNoImporter              = errors.New("importqueue: no block importer configured")
	ErrUnknownParent           = errors.New("importqueue: unknown parent")
	ErrKnownBad                = errors.New("importqueue: known-bad block")
	ErrNoJustificationImporter = errors.New("importqueue: no justification importer configured")
	ErrNoFinalityProofImporter = errors.New("importqueue: no finality-proof importer configured")
	errEarlierBatchItemFailed  = errors.New("importqueue: earlier block in batch failed")
)

// IncomingBlock is a single block handed to the queue by a caller, paired
// with the peer it arrived from (empty PeerID for locally sourced blocks).
type IncomingBlock struct {
	PeerID        string
	Origin        verifier.Origin
	Header        *types.Header
	Body          [][]byte
	Justification []byte
}

// ImportedAux carries verification side effects the Link reports back to
// the caller once a block has cleared the worker.
type ImportedAux struct {
	Hash                       types.Hash
	ClearJustificationRequests bool
	NeedsJustification         bool
	BadJustification           bool
	NeedsFinalityProof         bool
}

// Link is the caller-supplied collaborator the dispatcher reports results
// and peer behavior to.
type Link interface {
	BlockImported(hash types.Hash, aux ImportedAux)
	BlockImportFailed(hash types.Hash, err error)
	ClearJustificationRequests()
	RequestJustification(hash types.Hash, number uint64)
	ReportPeer(peerID string, delta int32, reason string)
	RequestFinalityProof(hash types.Hash, number uint64)
	Restart()
	BlocksProcessed(imported int, count int, results []BlockResult)
}

// ResultKind classifies the outcome of a single block passing through the
// worker, driving the dispatcher's Link callback dispatch.
type ResultKind int

const (
	// ResultImportedKnown is a block check_block already knew about; it is
	// reported as imported without running the verifier.
	ResultImportedKnown ResultKind = iota
	// ResultImportedUnknown is a block verified and imported for the first
	// time.
	ResultImportedUnknown
	ResultIncompleteHeader
	ResultVerificationFailed
	ResultBadBlock
	ResultUnknownParent
	ResultError
)

// BlockResult is the per-block outcome reported through BlocksProcessed.
type BlockResult struct {
	Hash   types.Hash
	Number uint64
	Kind   ResultKind
	Aux    ImportedAux
	PeerID string
	Err    error
}

// CheckStatus is the pre-check outcome Importer.CheckBlock reports before
// the worker verifies or imports a block.
type CheckStatus int

const (
	// CheckNew means the block is unknown to the chain; proceed to verify
	// and import it.
	CheckNew CheckStatus = iota
	// CheckAlreadyInChain means the block is already stored; it is reported
	// as imported without re-verification.
	CheckAlreadyInChain
	// CheckUnknownParent means the block's parent has not been imported.
	CheckUnknownParent
	// CheckKnownBad means the block was previously rejected and recorded as
	// bad.
	CheckKnownBad
)

// Importer performs the pre-check and the actual verify-then-insert work
// for a single block; it is the collaborator that owns chain storage (out
// of scope here).
type Importer interface {
	CheckBlock(hash, parent types.Hash) (CheckStatus, error)
	ImportBlock(block *verifier.ImportBlock) (ImportedAux, error)
}

// JustificationImporter validates and applies a standalone justification.
type JustificationImporter interface {
	ImportJustification(hash types.Hash, number uint64, justification []byte) error
}

// FinalityProofImporter validates and applies a standalone finality proof.
type FinalityProofImporter interface {
	ImportFinalityProof(peerID string, hash types.Hash, number uint64, proof []byte) error
}

type workItem struct {
	kind          workKind
	blocks        []IncomingBlock
	hash          types.Hash
	number        uint64
	justification []byte
	proof         []byte
	peerID        string
}

type workKind int

const (
	kindImportBlocks workKind = iota
	kindImportJustification
	kindImportFinalityProof
)

type workResult struct {
	kind    workKind
	results []BlockResult
	err     error
	hash    types.Hash
	peerID  string
}

// SlotOracle supplies the current slot number the header verifier checks
// deferred headers against.
type SlotOracle interface {
	CurrentSlot() slotclock.SlotNumber
}

// HeaderVerifier is the subset of verifier.HeaderVerifier the queue needs:
// turning a raw incoming header into an ImportBlock ready for the Importer,
// plus any authority-set rotation the header's digest log carries.
type HeaderVerifier interface {
	Verify(origin verifier.Origin, header *types.Header, body [][]byte, justification []byte, slotNow slotclock.SlotNumber) (*verifier.ImportBlock, *authority.Change, error)
}

// Queue is the two-stage dispatcher/worker import pipeline.
type Queue struct {
	hVerifier     HeaderVerifier
	slots         SlotOracle
	importer      Importer
	justImporter  JustificationImporter
	proofImporter FinalityProofImporter
	link          Link
	log           *log.Logger

	fromCallers chan workItem   // buffered(256): callers -> dispatcher
	fromWorker  chan workResult // buffered(256): worker -> dispatcher
	toWorker    chan workItem   // bounded(WorkerChannelCapacity): dispatcher -> worker

	stop chan struct{}
	done chan struct{}
}

// New creates a Queue. Call Start to launch the dispatcher and worker
// goroutines.
func New(hv HeaderVerifier, slots SlotOracle, importer Importer, justImporter JustificationImporter, proofImporter FinalityProofImporter, link Link, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default()
	}
	return &Queue{
		hVerifier:     hv,
		slots:         slots,
		importer:      importer,
		justImporter:  justImporter,
		proofImporter: proofImporter,
		link:          link,
		log:           logger.Module("aura.importqueue"),
		fromCallers:   make(chan workItem, 256),
		fromWorker:    make(chan workResult, 256),
		toWorker:      make(chan workItem, WorkerChannelCapacity),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the dispatcher and the single serial worker goroutine.
// Exactly one worker ever exists at a time.
func (q *Queue) Start(ctx context.Context) {
	go q.runWorker(ctx)
	go q.runDispatcher(ctx)
}

// Stop signals both goroutines to exit and blocks until the dispatcher has
// exited; the worker goroutine is not waited for.
func (q *Queue) Stop() {
	close(q.stop)
	<-q.done
}

// ImportBlocks enqueues a batch of blocks for import. A zero-length batch
// is rejected.
func (q *Queue) ImportBlocks(origin verifier.Origin, batch []IncomingBlock) error {
	if len(batch) == 0 {
		return ErrEmptyBatch
	}
	for i := range batch {
		batch[i].Origin = origin
	}
	select {
	case q.fromCallers <- workItem{kind: kindImportBlocks, blocks: batch}:
		metrics.QueueDepth.Inc()
		return nil
	case <-q.stop:
		return ErrQueueStopped
	}
}

// ImportJustification enqueues a standalone justification for import.
func (q *Queue) ImportJustification(hash types.Hash, number uint64, justification []byte) error {
	select {
	case q.fromCallers <- workItem{kind: kindImportJustification, hash: hash, number: number, justification: justification}:
		return nil
	case <-q.stop:
		return ErrQueueStopped
	}
}

// ImportFinalityProof enqueues a standalone finality proof for import.
func (q *Queue) ImportFinalityProof(peerID string, hash types.Hash, number uint64, proof []byte) error {
	select {
	case q.fromCallers <- workItem{kind: kindImportFinalityProof, peerID: peerID, hash: hash, number: number, proof: proof}:
		return nil
	case <-q.stop:
		return ErrQueueStopped
	}
}

// runDispatcher selects over the caller channel and the worker-result
// channel, forwarding block-import work to the bounded worker channel and
// relaying results back to the Link. Justification and finality-proof
// import run on their own goroutine off the dispatcher's select loop so
// neither blocks, nor serializes with, block import.
func (q *Queue) runDispatcher(ctx context.Context) {
	defer close(q.done)
	var pending []workItem

	for {
		var nextOut chan workItem
		var next workItem
		if len(pending) > 0 {
			nextOut = q.toWorker
			next = pending[0]
		}

		select {
		case item := <-q.fromCallers:
			switch item.kind {
			case kindImportJustification, kindImportFinalityProof:
				go q.runSideImport(ctx, item)
			default:
				pending = append(pending, item)
			}

		case result := <-q.fromWorker:
			q.relay(result)

		case nextOut <- next:
			pending = pending[1:]

		case <-ctx.Done():
			return
		case <-q.stop:
			return
		}
	}
}

// runSideImport handles a single justification or finality-proof import and
// reports its result back onto fromWorker, same as the block-import worker.
func (q *Queue) runSideImport(ctx context.Context, item workItem) {
	result := q.processSideImport(item)
	select {
	case q.fromWorker <- result:
	case <-ctx.Done():
	case <-q.stop:
	}
}

func (q *Queue) processSideImport(item workItem) workResult {
	switch item.kind {
	case kindImportJustification:
		if q.justImporter == nil {
			return workResult{kind: item.kind, hash: item.hash, err: ErrNoJustificationImporter}
		}
		err := q.justImporter.ImportJustification(item.hash, item.number, item.justification)
		return workResult{kind: item.kind, hash: item.hash, err: err}
	case kindImportFinalityProof:
		if q.proofImporter == nil {
			return workResult{kind: item.kind, hash: item.hash, peerID: item.peerID, err: ErrNoFinalityProofImporter}
		}
		err := q.proofImporter.ImportFinalityProof(item.peerID, item.hash, item.number, item.proof)
		return workResult{kind: item.kind, hash: item.hash, peerID: item.peerID, err: err}
	default:
		return workResult{kind: item.kind, err: fmt.Errorf("importqueue: unknown side-import kind %d", item.kind)}
	}
}

// relay reports a worker result to the Link. For blocks this drives the
// full per-result callback state machine: ClearJustificationRequests /
// RequestJustification / RequestFinalityProof off the ImportedAux booleans,
// the reputation delta for the result kind, and Restart on any failure
// kind, before finally calling BlocksProcessed.
func (q *Queue) relay(result workResult) {
	switch result.kind {
	case kindImportBlocks:
		imported := 0
		for _, r := range result.results {
			if r.Kind == ResultImportedKnown || r.Kind == ResultImportedUnknown {
				imported++
				metrics.BlocksImported.Inc()
			} else {
				metrics.BlocksFailed.Inc()
			}
			q.relayBlockResult(r)
		}
		q.link.BlocksProcessed(imported, len(result.results), result.results)
		metrics.QueueDepth.Dec()

	case kindImportJustification:
		if result.err != nil {
			q.log.Warn("justification import failed", "hash", result.hash.Hex(), "err", result.err)
		} else {
			q.link.ClearJustificationRequests()
		}

	case kindImportFinalityProof:
		if result.err != nil {
			q.log.Warn("finality proof import failed", "hash", result.hash.Hex(), "err", result.err)
		}
	}
}

func (q *Queue) relayBlockResult(r BlockResult) {
	switch r.Kind {
	case ResultImportedKnown:
		q.link.BlockImported(r.Hash, r.Aux)

	case ResultImportedUnknown:
		q.link.BlockImported(r.Hash, r.Aux)
		if r.Aux.ClearJustificationRequests {
			q.link.ClearJustificationRequests()
		}
		if r.Aux.NeedsJustification {
			q.link.RequestJustification(r.Hash, r.Number)
		}
		if r.Aux.BadJustification && r.PeerID != "" {
			q.link.ReportPeer(r.PeerID, ReputationBadJustification, "bad justification")
		}
		if r.Aux.NeedsFinalityProof {
			q.link.RequestFinalityProof(r.Hash, r.Number)
		}

	case ResultIncompleteHeader:
		if r.PeerID != "" {
			q.link.ReportPeer(r.PeerID, ReputationIncompleteHeader, "incomplete header")
		}
		q.link.BlockImportFailed(r.Hash, r.Err)
		q.link.Restart()

	case ResultVerificationFailed:
		if r.PeerID != "" {
			q.link.ReportPeer(r.PeerID, ReputationVerificationFail, r.Err.Error())
		}
		q.link.BlockImportFailed(r.Hash, r.Err)
		q.link.Restart()

	case ResultBadBlock:
		if r.PeerID != "" {
			q.link.ReportPeer(r.PeerID, ReputationBadBlock, r.Err.Error())
		}
		q.link.BlockImportFailed(r.Hash, r.Err)
		q.link.Restart()

	case ResultUnknownParent, ResultError:
		q.link.BlockImportFailed(r.Hash, r.Err)
		q.link.Restart()
	}
}

// runWorker is the single serial worker consuming the bounded channel from
// the dispatcher. Only block-import batches ever flow through this
// channel; justification and finality-proof import run on their own
// dispatcher-spawned goroutine (see runSideImport).
func (q *Queue) runWorker(ctx context.Context) {
	for {
		select {
		case item := <-q.toWorker:
			result := q.processBlocks(item)
			select {
			case q.fromWorker <- result:
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			}
		case <-ctx.Done():
			return
		case <-q.stop:
			return
		}
	}
}

// processBlocks imports a batch in order. Once any earlier item has failed,
// every remaining item is failed with ResultError without calling verify
// or import, guaranteeing parents are imported before children and that a
// failure never leaves partial state.
func (q *Queue) processBlocks(item workItem) workResult {
	results := make([]BlockResult, 0, len(item.blocks))
	failedEarlier := false
	for _, b := range item.blocks {
		if failedEarlier {
			results = append(results, BlockResult{Kind: ResultError, PeerID: b.PeerID, Err: errEarlierBatchItemFailed})
			continue
		}

		result := q.importSingleBlock(b)
		if result.Kind != ResultImportedKnown && result.Kind != ResultImportedUnknown {
			failedEarlier = true
		}
		results = append(results, result)
	}
	return workResult{kind: kindImportBlocks, results: results}
}

// importSingleBlock runs the pre-check, verify, and import stages for one
// block. It never panics: a missing header, missing importer, or any
// verification/import error all become a BlockResult, never a crash.
func (q *Queue) importSingleBlock(b IncomingBlock) BlockResult {
	if b.Header == nil {
		return BlockResult{Kind: ResultIncompleteHeader, PeerID: b.PeerID, Err: ErrMissingHeader}
	}
	hash := b.Header.Hash()
	number := b.Header.Number.Uint64()

	if q.importer == nil {
		return BlockResult{Hash: hash, Number: number, Kind: ResultError, Err: ErrNoImporter}
	}

	status, err := q.importer.CheckBlock(hash, b.Header.ParentHash)
	if err != nil {
		return BlockResult{Hash: hash, Number: number, Kind: ResultError, Err: err}
	}
	switch status {
	case CheckAlreadyInChain:
		return BlockResult{Hash: hash, Number: number, Kind: ResultImportedKnown}
	case CheckUnknownParent:
		return BlockResult{Hash: hash, Number: number, Kind: ResultUnknownParent, Err: ErrUnknownParent}
	case CheckKnownBad:
		return BlockResult{Hash: hash, Number: number, Kind: ResultBadBlock, PeerID: b.PeerID, Err: ErrKnownBad}
	}

	importBlock, change, err := q.hVerifier.Verify(b.Origin, b.Header, b.Body, b.Justification, q.slots.CurrentSlot())
	if err != nil {
		kind, peerAtFault := classifyVerifyError(err)
		peerID := ""
		if peerAtFault {
			peerID = b.PeerID
		}
		return BlockResult{Hash: hash, Number: number, Kind: kind, PeerID: peerID, Err: err}
	}
	importBlock.Body = b.Body
	if change != nil {
		if importBlock.Aux == nil {
			importBlock.Aux = make(map[string][]byte)
		}
		importBlock.Aux["auth"] = authority.EncodeChange(*change)
	}

	aux, err := q.importer.ImportBlock(importBlock)
	if err != nil {
		return BlockResult{Hash: hash, Number: number, Kind: ResultBadBlock, PeerID: b.PeerID, Err: err}
	}
	return BlockResult{Hash: hash, Number: number, Kind: ResultImportedUnknown, Aux: aux}
}

// classifyVerifyError maps a verifier error onto the ResultKind and the
// reputation delta it carries. Equivocation and deferred-header errors are
// never the reporting peer's fault.
func classifyVerifyError(err error) (kind ResultKind, peerAtFault bool) {
	var equivErr *verifier.EquivocationError
	var deferErr *verifier.DeferredError
	switch {
	case errors.As(err, &equivErr), errors.As(err, &deferErr):
		return ResultVerificationFailed, false
	case errors.Is(err, verifier.ErrInvalidSignature):
		return ResultVerificationFailed, true
	case errors.Is(err, verifier.ErrBadSeal):
		return ResultIncompleteHeader, true
	default:
		return ResultBadBlock, true
	}
}
