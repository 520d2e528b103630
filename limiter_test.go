package folio

import (
	"testing"
	"time"
)

// fail records a failed attempt when the limiter lets it through, the way
// handleLogin does for a wrong answer.
func fail(l *LoginLimiter, ip string) bool {
	if !l.Check(ip) {
		return false
	}
	l.Record(ip)
	return true
}

func TestLoginLimiterBlocksAfterMax(t *testing.T) {
	limiter := NewLoginLimiter(2, 200*time.Millisecond)
	defer limiter.Stop()
	ip := "203.0.113.10"

	if !fail(limiter, ip) {
		t.Fatalf("expected first attempt to be allowed")
	}
	if !fail(limiter, ip) {
		t.Fatalf("expected second attempt to be allowed")
	}
	if limiter.Check(ip) {
		t.Fatalf("expected third attempt to be blocked")
	}
}

func TestLoginLimiterResetsAfterWindow(t *testing.T) {
	limiter := NewLoginLimiter(1, 150*time.Millisecond)
	defer limiter.Stop()
	ip := "203.0.113.20"

	if !fail(limiter, ip) {
		t.Fatalf("expected first attempt to be allowed")
	}
	if limiter.Check(ip) {
		t.Fatalf("expected second attempt to be blocked")
	}

	time.Sleep(200 * time.Millisecond)
	if !limiter.Check(ip) {
		t.Fatalf("expected attempt after window to be allowed")
	}
}

func TestLoginLimiterIsPerIP(t *testing.T) {
	limiter := NewLoginLimiter(1, 200*time.Millisecond)
	defer limiter.Stop()

	if !fail(limiter, "203.0.113.30") {
		t.Fatalf("expected first ip to be allowed")
	}
	if !fail(limiter, "203.0.113.31") {
		t.Fatalf("expected second ip to be allowed independently")
	}
	if limiter.Check("203.0.113.30") {
		t.Fatalf("expected first ip to be blocked after max")
	}
}

func TestLoginLimiterCheckDoesNotRecord(t *testing.T) {
	limiter := NewLoginLimiter(1, time.Minute)
	defer limiter.Stop()
	ip := "203.0.113.40"

	for i := 0; i < 3; i++ {
		if !limiter.Check(ip) {
			t.Fatalf("Check %d blocked without recorded failures", i)
		}
	}
	limiter.Record(ip)
	if limiter.Check(ip) {
		t.Fatalf("expected Check to block after a recorded failure")
	}
}

func TestLoginLimiterZeroMaxDisables(t *testing.T) {
	limiter := NewLoginLimiter(0, time.Minute)
	defer limiter.Stop()
	for i := 0; i < 10; i++ {
		if !fail(limiter, "203.0.113.50") {
			t.Fatalf("expected unlimited attempts with max 0")
		}
	}
}
