package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestLimiter(t *testing.T, limit int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	l, err := New("redis://"+s.Addr(), limit, window)
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return l, s
}

func TestAllowUnderLimit(t *testing.T) {
	l, s := setupTestLimiter(t, 3, time.Minute)
	defer l.Close()
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "12345") {
			t.Fatalf("submission %d unexpectedly denied", i+1)
		}
	}
}

func TestDenyOverLimit(t *testing.T) {
	l, s := setupTestLimiter(t, 2, time.Minute)
	defer l.Close()
	defer s.Close()

	ctx := context.Background()
	l.Allow(ctx, "12345")
	l.Allow(ctx, "12345")

	if l.Allow(ctx, "12345") {
		t.Error("third submission in window should be denied")
	}
}

func TestWindowReset(t *testing.T) {
	l, s := setupTestLimiter(t, 1, time.Minute)
	defer l.Close()
	defer s.Close()

	ctx := context.Background()
	if !l.Allow(ctx, "12345") {
		t.Fatal("first submission denied")
	}
	if l.Allow(ctx, "12345") {
		t.Fatal("second submission in window should be denied")
	}

	s.FastForward(61 * time.Second)

	if !l.Allow(ctx, "12345") {
		t.Error("submission after window expiry should be allowed")
	}
}

func TestOrphanedCounterRegainsTTL(t *testing.T) {
	l, s := setupTestLimiter(t, 2, time.Minute)
	defer l.Close()
	defer s.Close()

	// Counter left behind without a TTL, as after a failure between
	// INCR and EXPIRE.
	if err := s.Set("submit:12345", "5"); err != nil {
		t.Fatalf("seed counter: %v", err)
	}

	ctx := context.Background()
	if l.Allow(ctx, "12345") {
		t.Fatal("over-limit counter should deny")
	}
	if s.TTL("submit:12345") <= 0 {
		t.Fatal("denial must re-apply the window TTL to an orphaned counter")
	}

	s.FastForward(61 * time.Second)

	if !l.Allow(ctx, "12345") {
		t.Error("window must reset once the repaired TTL expires")
	}
}

func TestChatIsolation(t *testing.T) {
	l, s := setupTestLimiter(t, 1, time.Minute)
	defer l.Close()
	defer s.Close()

	ctx := context.Background()
	l.Allow(ctx, "chat-a")

	if !l.Allow(ctx, "chat-b") {
		t.Error("a busy chat must not throttle an unrelated chat")
	}
}

func TestFailOpenOnRedisOutage(t *testing.T) {
	l, s := setupTestLimiter(t, 1, time.Minute)
	defer l.Close()

	s.Close()

	if !l.Allow(context.Background(), "12345") {
		t.Error("redis outage must fail open")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if !l.Allow(context.Background(), "12345") {
		t.Error("nil limiter must allow")
	}
}

func TestEmptyChatIdentityAllows(t *testing.T) {
	l, s := setupTestLimiter(t, 0, time.Minute)
	defer l.Close()
	defer s.Close()

	if !l.Allow(context.Background(), "") {
		t.Error("submissions without a chat identity are never throttled")
	}
}
