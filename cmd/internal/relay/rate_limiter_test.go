package relay

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d unexpectedly blocked", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("expected event over limit to be blocked")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)

	if !rl.Allow(now) || !rl.Allow(now.Add(time.Second)) {
		t.Fatalf("events within limit blocked")
	}
	if rl.Allow(now.Add(2 * time.Second)) {
		t.Fatalf("expected block inside the window")
	}

	// The first event ages out; capacity frees up.
	later := now.Add(time.Minute + time.Millisecond)
	if !rl.Allow(later) {
		t.Fatalf("expected allow after oldest event left the window")
	}
}

func TestRateLimiter_DefaultsOnInvalidInput(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("defaults not applied: limit=%d window=%v", rl.limit, rl.window)
	}
}
