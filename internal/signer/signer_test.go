package signer

import "testing"

func TestECDSASigner_SignVerifyRoundTrip(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}

	msg := []byte("header digest bytes")
	sig, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if !Verify(s.AuthorityId(), msg, sig) {
		t.Fatal("Verify rejected a genuine signature")
	}
}

func TestVerify_RejectsWrongAuthor(t *testing.T) {
	a, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	b, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}

	msg := []byte("header digest bytes")
	sig, err := a.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(b.AuthorityId(), msg, sig) {
		t.Fatal("Verify accepted a signature under the wrong authority")
	}
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	sig, err := s.Sign([]byte("original"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if Verify(s.AuthorityId(), []byte("tampered"), sig) {
		t.Fatal("Verify accepted a signature over a different message")
	}
}

func TestVerify_RejectsMalformedSignature(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	if Verify(s.AuthorityId(), []byte("msg"), []byte{1, 2, 3}) {
		t.Fatal("Verify accepted a too-short signature")
	}
}

func TestNewECDSASigner_NilKey(t *testing.T) {
	if _, err := NewECDSASigner(nil); err == nil {
		t.Fatal("NewECDSASigner(nil) should fail")
	}
}
