package node

import (
	"errors"
	"testing"
	"time"
)

func TestRecoveryPolicy_RecordFailureComputesBackoff(t *testing.T) {
	rp := NewRecoveryPolicy()
	cfg := RecoveryConfig{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second, BackoffMultiplier: 2.0}
	if err := rp.Register("importqueue", cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	backoff, err := rp.RecordFailure("importqueue", errors.New("boom"))
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if backoff != time.Second {
		t.Fatalf("first backoff = %v, want %v", backoff, time.Second)
	}

	backoff, err = rp.RecordFailure("importqueue", errors.New("boom again"))
	if err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if backoff != 2*time.Second {
		t.Fatalf("second backoff = %v, want %v", backoff, 2*time.Second)
	}

	state, err := rp.GetState("importqueue")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != RecoveryPending {
		t.Fatalf("state = %v, want RecoveryPending", state)
	}
}

func TestRecoveryPolicy_ExhaustsAfterMaxRetries(t *testing.T) {
	rp := NewRecoveryPolicy()
	cfg := RecoveryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2.0}
	if err := rp.Register("authorship", cfg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := rp.RecordFailure("authorship", errors.New("e1")); err != nil {
		t.Fatalf("first RecordFailure: %v", err)
	}
	if _, err := rp.RecordFailure("authorship", errors.New("e2")); !errors.Is(err, ErrRecoveryMaxRetries) {
		t.Fatalf("second RecordFailure err = %v, want ErrRecoveryMaxRetries", err)
	}

	state, err := rp.GetState("authorship")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state != RecoveryExhausted {
		t.Fatalf("state = %v, want RecoveryExhausted", state)
	}
}

func TestRecoveryPolicy_RecordSuccessResets(t *testing.T) {
	rp := NewRecoveryPolicy()
	if err := rp.Register("svc", DefaultRecoveryConfig()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := rp.RecordFailure("svc", errors.New("e")); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := rp.RecordSuccess("svc"); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	retries, err := rp.GetRetries("svc")
	if err != nil {
		t.Fatalf("GetRetries: %v", err)
	}
	if retries != 0 {
		t.Fatalf("retries after success = %d, want 0", retries)
	}
	if rp.ShouldRestart("svc") {
		t.Fatal("ShouldRestart should be false after RecordSuccess")
	}
}

func TestRecoveryPolicy_UnknownService(t *testing.T) {
	rp := NewRecoveryPolicy()
	if _, err := rp.RecordFailure("ghost", errors.New("e")); !errors.Is(err, ErrRecoveryServiceUnknown) {
		t.Fatalf("RecordFailure(unknown) err = %v, want ErrRecoveryServiceUnknown", err)
	}
}

func TestRecoveryPolicy_RegisterAfterCloseFails(t *testing.T) {
	rp := NewRecoveryPolicy()
	rp.Close()
	if err := rp.Register("svc", DefaultRecoveryConfig()); !errors.Is(err, ErrRecoveryPolicyClosed) {
		t.Fatalf("Register after Close err = %v, want ErrRecoveryPolicyClosed", err)
	}
}
