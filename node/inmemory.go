package node

import (
	"context"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/authorship"
	"github.com/aura-chain/aura-engine/internal/importqueue"
	"github.com/aura-chain/aura-engine/internal/verifier"
)

// InMemoryChain is a minimal ChainHeadProvider/Importer/Link backed by a map
// of imported headers. It exists so aura-node can run standalone without a
// real storage, networking, or transaction-pool stack (all out of this
// engine's scope) — a host embedding this engine for production use
// supplies its own implementations of these collaborator interfaces instead.
type InMemoryChain struct {
	mu      sync.RWMutex
	headers map[types.Hash]*types.Header
	head    *types.Header

	reputation *ReputationBook
}

// NewInMemoryChain seeds the chain with a genesis header at number 0.
func NewInMemoryChain(genesisTimeMillis uint64) *InMemoryChain {
	genesis := types.NewHeader(types.Hash{}, new(uint256.Int), genesisTimeMillis)
	c := &InMemoryChain{
		headers:    make(map[types.Hash]*types.Header),
		reputation: NewReputationBook(DefaultReputationConfig()),
	}
	c.headers[genesis.Hash()] = genesis
	c.head = genesis
	return c
}

// ChainHead implements ChainHeadProvider.
func (c *InMemoryChain) ChainHead() (*types.Header, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head, nil
}

// CheckBlock implements importqueue.Importer. A hash already in the
// headers map is AlreadyInChain; a parent not yet imported is
// UnknownParent. This chain never records a block as known-bad.
func (c *InMemoryChain) CheckBlock(hash, parent types.Hash) (importqueue.CheckStatus, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.headers[hash]; ok {
		return importqueue.CheckAlreadyInChain, nil
	}
	if _, ok := c.headers[parent]; !ok {
		return importqueue.CheckUnknownParent, nil
	}
	return importqueue.CheckNew, nil
}

// ImportBlock implements importqueue.Importer. It accepts any block whose
// parent is already known, appending it to the chain and advancing the head
// when it extends the current best header.
func (c *InMemoryChain) ImportBlock(block *verifier.ImportBlock) (importqueue.ImportedAux, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := block.Header.Hash()
	c.headers[hash] = block.Header
	if block.Header.Number.Cmp(c.head.Number) > 0 {
		c.head = block.Header
	}
	return importqueue.ImportedAux{Hash: hash}, nil
}

// BlockImported implements importqueue.Link as a no-op observer.
func (c *InMemoryChain) BlockImported(types.Hash, importqueue.ImportedAux) {}

// BlockImportFailed implements importqueue.Link as a no-op observer.
func (c *InMemoryChain) BlockImportFailed(types.Hash, error) {}

// ClearJustificationRequests implements importqueue.Link as a no-op.
func (c *InMemoryChain) ClearJustificationRequests() {}

// RequestJustification implements importqueue.Link as a no-op.
func (c *InMemoryChain) RequestJustification(types.Hash, uint64) {}

// ReportPeer implements importqueue.Link by forwarding to a ReputationBook.
// There is no real peer connection to disconnect without a networking
// stack, but the score is tracked and queryable via Reputation.
func (c *InMemoryChain) ReportPeer(peerID string, delta int32, reason string) {
	c.reputation.Adjust(peerID, delta, reason)
}

// Reputation exposes the chain's peer-reputation book.
func (c *InMemoryChain) Reputation() *ReputationBook { return c.reputation }

// RequestFinalityProof implements importqueue.Link as a no-op.
func (c *InMemoryChain) RequestFinalityProof(types.Hash, uint64) {}

// Restart implements importqueue.Link as a no-op.
func (c *InMemoryChain) Restart() {}

// BlocksProcessed implements importqueue.Link as a no-op.
func (c *InMemoryChain) BlocksProcessed(int, int, []importqueue.BlockResult) {}

// EmptyBodyProposer is an authorship.Proposer that produces a header with no
// transaction body, extending whatever parent it is given. It is the
// engine's own stand-in for a real block-building pipeline (block body
// semantics are out of scope here) and is only suitable for standalone operation.
type EmptyBodyProposer struct{}

// Propose implements authorship.Proposer.
func (EmptyBodyProposer) Propose(_ context.Context, parent *types.Header, _ authority.Set, _ authorship.InherentData, _ time.Duration) (authorship.Proposal, error) {
	number := new(uint256.Int).AddUint64(parent.Number, 1)
	header := types.NewHeader(parent.Hash(), number, uint64(time.Now().UnixMilli()))
	return authorship.Proposal{Header: header}, nil
}

// AlwaysOnline implements authorship.SyncOracle reporting the node as never
// offline, appropriate when there is no real sync/networking stack to ask.
type AlwaysOnline struct{}

// IsOffline implements authorship.SyncOracle.
func (AlwaysOnline) IsOffline() bool { return false }
