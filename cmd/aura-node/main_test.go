package main

import "testing"

func TestRun_Help(t *testing.T) {
	if code := run([]string{"aura-node", "--help"}); code != 0 {
		t.Fatalf("run(--help) = %d, want 0", code)
	}
}

func TestRun_InvalidSlotDurationFailsFast(t *testing.T) {
	// slot-ms=0 fails cfg.Validate() before the node starts or blocks on a
	// shutdown signal, so this exercises the flag-to-Config wiring without
	// hanging the test.
	if code := run([]string{"aura-node", "--slot-ms", "0"}); code != 1 {
		t.Fatalf("run(--slot-ms 0) = %d, want 1", code)
	}
}

func TestRun_UnknownFlagFails(t *testing.T) {
	if code := run([]string{"aura-node", "--not-a-real-flag"}); code != 1 {
		t.Fatalf("run(--not-a-real-flag) = %d, want 1", code)
	}
}
