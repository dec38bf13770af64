package node

import "testing"

func TestReputationBook_AdjustAccumulates(t *testing.T) {
	rb := NewReputationBook(DefaultReputationConfig())
	rb.Adjust("peer-1", -100, "bad header")
	rb.Adjust("peer-1", -50, "bad seal")

	if got := rb.Score("peer-1"); got != -150 {
		t.Fatalf("Score = %d, want -150", got)
	}
}

func TestReputationBook_AutoBansAtThreshold(t *testing.T) {
	cfg := ReputationConfig{BanThreshold: -1000, BanDuration: 0}
	rb := NewReputationBook(cfg)

	rb.Adjust("peer-1", -500, "strike one")
	if !rb.IsAllowed("peer-1") {
		t.Fatal("peer should still be allowed before crossing the ban threshold")
	}

	rb.Adjust("peer-1", -600, "strike two")
	if rb.IsAllowed("peer-1") {
		t.Fatal("peer should be banned after crossing the ban threshold")
	}
}

func TestReputationBook_UntrackedPeerAllowed(t *testing.T) {
	rb := NewReputationBook(DefaultReputationConfig())
	if !rb.IsAllowed("stranger") {
		t.Fatal("an untracked peer should be allowed")
	}
	if rb.Score("stranger") != 0 {
		t.Fatalf("Score(stranger) = %d, want 0", rb.Score("stranger"))
	}
}

func TestReputationBook_WorstPeersSortedAscending(t *testing.T) {
	rb := NewReputationBook(DefaultReputationConfig())
	rb.Adjust("a", -10, "x")
	rb.Adjust("b", -100, "x")
	rb.Adjust("c", -1, "x")

	worst := rb.WorstPeers(2)
	if len(worst) != 2 {
		t.Fatalf("len(WorstPeers(2)) = %d, want 2", len(worst))
	}
	if worst[0].PeerID != "b" || worst[1].PeerID != "a" {
		t.Fatalf("WorstPeers order = %v, want [b, a]", worst)
	}
}

func TestReputationBook_RemovePeer(t *testing.T) {
	rb := NewReputationBook(DefaultReputationConfig())
	rb.Adjust("peer-1", -10, "x")
	rb.RemovePeer("peer-1")
	if rb.PeerCount() != 0 {
		t.Fatalf("PeerCount after RemovePeer = %d, want 0", rb.PeerCount())
	}
}

func TestReputationBook_DefaultBanThresholdMatchesBadBlockMagnitude(t *testing.T) {
	cfg := DefaultReputationConfig()
	if cfg.BanThreshold != -(1 << 29) {
		t.Fatalf("DefaultReputationConfig().BanThreshold = %d, want %d", cfg.BanThreshold, -(1 << 29))
	}
}
