package protocol

import "testing"

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("request %d should be within burst", i)
		}
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.Allow("client-a") {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow("client-a") {
		t.Fatal("second immediate request should exceed the burst")
	}
}

func TestRateLimiterTracksIdentitiesIndependently(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.Allow("client-a") {
		t.Fatal("client-a first request should be allowed")
	}
	if !rl.Allow("client-b") {
		t.Fatal("client-b has its own bucket and should be allowed")
	}
}

func TestRateLimiterForgetResetsIdentity(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	if !rl.Allow("client-a") {
		t.Fatal("first request should be allowed")
	}
	rl.Forget("client-a")
	if !rl.Allow("client-a") {
		t.Fatal("a forgotten identity should get a fresh bucket")
	}
}
