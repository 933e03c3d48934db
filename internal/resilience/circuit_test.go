package resilience

import (
	"context"
	"testing"
	"time"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	b := NewBreaker(4, 0.5, time.Minute).WithTarget("alerts")
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if !b.Allow(ctx) {
			t.Fatalf("breaker should allow request %d while closed", i)
		}
		b.Report(ctx, false)
	}
	if b.Allow(ctx) {
		t.Fatal("breaker should reject once failure ratio exceeded")
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(2, 0.5, 10*time.Millisecond).WithTarget("alerts")
	ctx := context.Background()
	b.Report(ctx, false)
	b.Report(ctx, false)
	if b.Allow(ctx) {
		t.Fatal("breaker should be open")
	}
	time.Sleep(15 * time.Millisecond)
	if !b.Allow(ctx) {
		t.Fatal("breaker should probe after cool-off")
	}
	b.Report(ctx, true)
	if !b.Allow(ctx) {
		t.Fatal("breaker should close after successful probe")
	}
}

func TestBackoffGrows(t *testing.T) {
	base := 100 * time.Millisecond
	if Backoff(base, 1, 0) != base {
		t.Fatal("attempt 1 should equal base")
	}
	if Backoff(base, 3, 0) != 4*base {
		t.Fatal("attempt 3 should be 4x base")
	}
}
