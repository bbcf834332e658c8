package protocol

import (
	"testing"
	"time"
)

func TestVerifyAcceptsFreshHandshake(t *testing.T) {
	a, err := NewAuthenticator([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	now := time.Now()
	hs := a.Sign([16]byte{1, 2, 3}, now)
	if err := a.Verify(hs, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	a, err := NewAuthenticator([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	now := time.Now()
	hs := a.Sign([16]byte{9, 9, 9}, now)
	if err := a.Verify(hs, now); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := a.Verify(hs, now); err == nil {
		t.Fatal("expected replayed nonce to be rejected")
	}
}

func TestVerifyRejectsBadMAC(t *testing.T) {
	a, err := NewAuthenticator([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	now := time.Now()
	hs := a.Sign([16]byte{4, 5, 6}, now)
	hs.MAC[0] ^= 0xFF
	if err := a.Verify(hs, now); err == nil {
		t.Fatal("expected tampered MAC to be rejected")
	}
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	a, err := NewAuthenticator([]byte("shared-secret"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	signedAt := time.Now().Add(-10 * time.Minute)
	hs := a.Sign([16]byte{7, 7, 7}, signedAt)
	if err := a.Verify(hs, time.Now()); err == nil {
		t.Fatal("expected stale timestamp outside skew window to be rejected")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a, err := NewAuthenticator([]byte("secret-a"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	b, err := NewAuthenticator([]byte("secret-b"))
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	now := time.Now()
	hs := a.Sign([16]byte{1}, now)
	if err := b.Verify(hs, now); err == nil {
		t.Fatal("expected handshake signed under a different secret to be rejected")
	}
}
