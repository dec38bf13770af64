package node

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/aura-chain/aura-engine/core/types"
	"github.com/aura-chain/aura-engine/internal/verifier"
)

func TestInMemoryChain_ChainHeadIsGenesisInitially(t *testing.T) {
	c := NewInMemoryChain(1000)
	head, err := c.ChainHead()
	if err != nil {
		t.Fatalf("ChainHead: %v", err)
	}
	if head.Number.Sign() != 0 {
		t.Fatalf("genesis head number = %v, want 0", head.Number)
	}
}

func TestInMemoryChain_ImportBlock_AdvancesHead(t *testing.T) {
	c := NewInMemoryChain(0)
	genesis, _ := c.ChainHead()

	child := types.NewHeader(genesis.Hash(), new(uint256.Int).SetUint64(1), 1)
	aux, err := c.ImportBlock(&verifier.ImportBlock{Header: child})
	if err != nil {
		t.Fatalf("ImportBlock: %v", err)
	}
	if aux.Hash != child.Hash() {
		t.Fatal("ImportBlock should report the imported block's own hash")
	}

	head, _ := c.ChainHead()
	if head.Hash() != child.Hash() {
		t.Fatal("ChainHead should advance to the imported child")
	}
}

func TestInMemoryChain_ImportBlock_DoesNotRegressHead(t *testing.T) {
	c := NewInMemoryChain(0)
	genesis, _ := c.ChainHead()

	child := types.NewHeader(genesis.Hash(), new(uint256.Int).SetUint64(1), 1)
	c.ImportBlock(&verifier.ImportBlock{Header: child})

	// A second, lower-numbered block must not become the new best.
	sibling := types.NewHeader(genesis.Hash(), new(uint256.Int), 2)
	aux, err := c.ImportBlock(&verifier.ImportBlock{Header: sibling})
	if err != nil {
		t.Fatalf("ImportBlock: %v", err)
	}
	if aux.Hash != sibling.Hash() {
		t.Fatal("ImportBlock should report the imported block's own hash")
	}

	head, _ := c.ChainHead()
	if head.Hash() != child.Hash() {
		t.Fatal("ChainHead should remain at the higher-number child")
	}
}

func TestInMemoryChain_ReportPeer_UpdatesReputation(t *testing.T) {
	c := NewInMemoryChain(0)
	c.ReportPeer("peer-1", -50, "bad header")
	if got := c.Reputation().Score("peer-1"); got != -50 {
		t.Fatalf("Reputation().Score(peer-1) = %d, want -50", got)
	}
}

func TestEmptyBodyProposer_Propose_ExtendsParent(t *testing.T) {
	parent := types.NewHeader(types.Hash{}, new(uint256.Int), 0)
	var p EmptyBodyProposer
	proposal, err := p.Propose(context.Background(), parent, nil, nil, time.Second)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if proposal.Header.ParentHash != parent.Hash() {
		t.Fatal("proposed header should extend the given parent")
	}
	wantNumber := new(uint256.Int).AddUint64(parent.Number, 1)
	if proposal.Header.Number.Cmp(wantNumber) != 0 {
		t.Fatalf("proposed header number = %v, want %v", proposal.Header.Number, wantNumber)
	}
}

func TestAlwaysOnline_IsOffline(t *testing.T) {
	var a AlwaysOnline
	if a.IsOffline() {
		t.Fatal("AlwaysOnline.IsOffline() should always be false")
	}
}
