package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"time"

	lru "github.com/hashicorp/golang-lru"

	synerrors "github.com/synapsedb/synapse/pkg/errors"
)

// skewWindow bounds how far a handshake timestamp may drift from the
// server's clock before it's rejected, limiting how long a captured
// handshake stays replayable even before the nonce cache is consulted.
const skewWindow = 60 * time.Second

const nonceCacheSize = 1 << 16

// Authenticator validates the HMAC-SHA256 handshake §6.2 SECURE_MODE=true
// requires, rejecting any nonce it has already seen within the skew
// window (§7 AuthError).
type Authenticator struct {
	secret []byte
	nonces *lru.Cache
}

// NewAuthenticator builds an authenticator over a shared secret. The
// nonce cache is sized generously above any plausible handshake rate
// within one skew window so a legitimate burst of reconnects never
// evicts a nonce before its replay window closes.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	cache, err := lru.New(nonceCacheSize)
	if err != nil {
		return nil, synerrors.Wrap(err, "build nonce cache")
	}
	return &Authenticator{secret: secret, nonces: cache}, nil
}

// Handshake is the client-sent authentication payload: a nonce, a
// millisecond Unix timestamp, and an HMAC-SHA256 tag over both computed
// with the shared secret.
type Handshake struct {
	Nonce     [16]byte
	TimestampMS int64
	MAC       [32]byte
}

// sign computes the HMAC tag for a nonce+timestamp pair.
func (a *Authenticator) sign(nonce [16]byte, timestampMS int64) [32]byte {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write(nonce[:])
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestampMS))
	mac.Write(tsBuf[:])
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// Sign produces a Handshake for the given nonce and current time, used by
// test clients and by any in-process caller that needs to authenticate.
func (a *Authenticator) Sign(nonce [16]byte, now time.Time) Handshake {
	ts := now.UnixMilli()
	return Handshake{Nonce: nonce, TimestampMS: ts, MAC: a.sign(nonce, ts)}
}

// Verify checks hs's MAC, timestamp skew, and nonce freshness, recording
// the nonce as seen on success so a second handshake with the same nonce
// is rejected even if the MAC and timestamp are still valid (§6.1
// "HMAC-SHA256 auth with nonce replay cache").
func (a *Authenticator) Verify(hs Handshake, now time.Time) error {
	want := a.sign(hs.Nonce, hs.TimestampMS)
	if subtle.ConstantTimeCompare(want[:], hs.MAC[:]) != 1 {
		return &synerrors.AuthError{Reason: "mac mismatch"}
	}

	skew := now.Sub(time.UnixMilli(hs.TimestampMS))
	if skew < 0 {
		skew = -skew
	}
	if skew > skewWindow {
		return &synerrors.AuthError{Reason: "timestamp outside skew window"}
	}

	key := hs.Nonce
	if a.nonces.Contains(key) {
		return &synerrors.AuthError{Reason: "nonce replay"}
	}
	a.nonces.Add(key, struct{}{})
	return nil
}
