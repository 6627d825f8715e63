package app

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts must pass")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt inside the window must be blocked")
	}
	if !rl.Allow("b") {
		t.Fatal("limits are per identity")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempt after the window must pass")
	}
}

func TestRateLimiter_DisabledAndNil(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !rl.Allow("a") {
			t.Fatal("zero limit must disable limiting")
		}
	}
	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("a") {
		t.Fatal("nil limiter must allow")
	}
	nilLimiter.Forget("a")
}

func TestRateLimiter_Forget(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	rl.Allow("a")
	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten identity should start with a clean window")
	}
}

func TestParseBackpressureAction(t *testing.T) {
	for in, want := range map[string]BackpressureAction{"": DropMessage, "drop": DropMessage, "disconnect": DisconnectPeer} {
		got, err := ParseBackpressureAction(in)
		if err != nil || got != want {
			t.Fatalf("ParseBackpressureAction(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseBackpressureAction("kick"); err == nil {
		t.Fatal("expected error")
	}
}
