package node

import (
	"testing"
	"time"

	"github.com/aura-chain/aura-engine/internal/authority"
	"github.com/aura-chain/aura-engine/internal/signer"
)

func TestNode_NewStartStop(t *testing.T) {
	s, err := signer.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	authorities := authority.NewStaticProvider(authority.Set{s.AuthorityId()})
	chain := NewInMemoryChain(uint64(time.Now().UnixMilli()))

	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.SlotDurationMillis = 5
	cfg.GenesisTimeMillis = uint64(time.Now().UnixMilli())

	n, err := New(cfg, Deps{
		Signer:      s,
		Authorities: authorities,
		ChainHead:   chain,
		Proposer:    EmptyBodyProposer{},
		Importer:    chain,
		SyncOracle:  AlwaysOnline{},
		Link:        chain,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if n.HealthReport() == nil {
		t.Fatal("HealthReport() should not be nil once started")
	}
	if n.FinalityWindow() == nil {
		t.Fatal("FinalityWindow() should not be nil")
	}
	if n.HeaderVerifier() == nil {
		t.Fatal("HeaderVerifier() should not be nil")
	}
	if n.ImportQueue() == nil {
		t.Fatal("ImportQueue() should not be nil")
	}
	if n.Events() == nil {
		t.Fatal("Events() should not be nil")
	}

	if err := n.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNode_New_RejectsInvalidConfig(t *testing.T) {
	s, err := signer.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	authorities := authority.NewStaticProvider(authority.Set{s.AuthorityId()})
	chain := NewInMemoryChain(0)

	cfg := DefaultConfig()
	cfg.SlotDurationMillis = 0 // invalid

	if _, err := New(cfg, Deps{
		Signer:      s,
		Authorities: authorities,
		ChainHead:   chain,
		Proposer:    EmptyBodyProposer{},
		Importer:    chain,
		SyncOracle:  AlwaysOnline{},
		Link:        chain,
	}); err == nil {
		t.Fatal("New should reject an invalid config")
	}
}
