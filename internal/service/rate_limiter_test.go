package service

import (
	"testing"
	"time"
)

func TestRateLimiter_BlocksAfterMax(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("user@example.com") {
			t.Fatalf("expected attempt %d to be allowed", i+1)
		}
	}
	if limiter.Allow("user@example.com") {
		t.Fatalf("expected attempt over max to be blocked")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(time.Minute, 1)

	if !limiter.Allow("a@example.com") {
		t.Fatalf("expected first key to be allowed")
	}
	if !limiter.Allow("b@example.com") {
		t.Fatalf("expected second key to be allowed")
	}
	if limiter.Allow("a@example.com") {
		t.Fatalf("expected first key to be blocked")
	}
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	limiter := NewRateLimiter(50*time.Millisecond, 1)

	if !limiter.Allow("user@example.com") {
		t.Fatalf("expected first attempt to be allowed")
	}
	if limiter.Allow("user@example.com") {
		t.Fatalf("expected second attempt to be blocked")
	}
	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("user@example.com") {
		t.Fatalf("expected attempt after window to be allowed")
	}
}
