package protocol

import (
	"sync"

	"github.com/cockroachdb/tokenbucket"
)

// RateLimiter hands out one token bucket per connection identity (the
// server keys it by the connection's remote address), backing
// the Overloaded response for a client that exceeds its share (§7
// Overloaded, §6.1 transport-level back-pressure).
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenbucket.TokenBucket
	rate    tokenbucket.RateLimit
	burst   tokenbucket.Tokens
}

// NewRateLimiter configures a limiter where every identity may sustain
// ratePerSecond requests/second with bursts up to burst requests.
func NewRateLimiter(ratePerSecond float64, burst float64) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenbucket.TokenBucket),
		rate:    tokenbucket.RateLimit(ratePerSecond),
		burst:   tokenbucket.Tokens(burst),
	}
}

// Allow reports whether identity may proceed with one more request right
// now, creating its bucket lazily on first use.
func (rl *RateLimiter) Allow(identity string) bool {
	rl.mu.Lock()
	tb, ok := rl.buckets[identity]
	if !ok {
		tb = &tokenbucket.TokenBucket{}
		tb.Init(rl.rate, rl.burst)
		rl.buckets[identity] = tb
	}
	rl.mu.Unlock()

	fulfilled, _ := tb.TryToFulfill(1)
	return fulfilled
}

// Forget drops identity's bucket, called when a connection closes so a
// long-lived server doesn't accumulate one bucket per ephemeral client
// forever.
func (rl *RateLimiter) Forget(identity string) {
	rl.mu.Lock()
	delete(rl.buckets, identity)
	rl.mu.Unlock()
}
