package signal

import (
	"testing"
	"time"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("alice") || !rl.Allow("alice") {
		t.Fatal("first two attempts should pass")
	}
	if rl.Allow("alice") {
		t.Fatal("third attempt inside the window should be blocked")
	}
	if !rl.Allow("bob") {
		t.Fatal("limits are per user")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow("alice") {
		t.Fatal("attempt after the window should pass")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !rl.Allow("alice") {
			t.Fatal("non-positive limit should disable limiting")
		}
	}
}
