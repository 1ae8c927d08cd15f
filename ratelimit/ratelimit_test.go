package ratelimit

import (
	"sync"
	"testing"
	"time"
)

// --- Unit Tests ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l := New(cfg)
	l.now = clock.Now
	return l, clock
}

func TestAllowBurst(t *testing.T) {
	l, _ := newTestLimiter(Config{Burst: 3, Window: time.Second})
	for i := 0; i < 3; i++ {
		if !l.Allow("p1") {
			t.Fatalf("request %d denied", i)
		}
	}
	if l.Allow("p1") {
		t.Error("fourth request allowed")
	}
}

func TestRefill(t *testing.T) {
	l, clock := newTestLimiter(Config{Burst: 4, Window: time.Second})
	for i := 0; i < 4; i++ {
		l.Allow("p1")
	}

	clock.Advance(250 * time.Millisecond)
	if !l.Allow("p1") {
		t.Error("expected one token after a quarter window")
	}
	if l.Allow("p1") {
		t.Error("expected bucket empty again")
	}

	clock.Advance(time.Hour)
	if got := l.Available("p1"); got != 4 {
		t.Errorf("Available = %d after long idle, want capped at 4", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(Config{Burst: 1, Window: time.Minute})
	if !l.Allow("p1") || l.Allow("p1") {
		t.Fatal("p1 bucket should hold one token")
	}
	if !l.Allow("p2") {
		t.Error("p2 throttled by p1's bucket")
	}
}

func TestForget(t *testing.T) {
	l, _ := newTestLimiter(Config{Burst: 1, Window: time.Minute})
	l.Allow("p1")
	l.Forget("p1")
	if !l.Allow("p1") {
		t.Error("forgotten key should start with a full bucket")
	}
}

func TestPrune(t *testing.T) {
	l, clock := newTestLimiter(Config{Burst: 2, Window: time.Second})
	l.Allow("busy")
	l.Allow("busy")
	l.Allow("idle")
	clock.Advance(500 * time.Millisecond)
	l.Prune()

	l.mu.Lock()
	n := len(l.buckets)
	_, busy := l.buckets["busy"]
	l.mu.Unlock()
	if n != 1 || !busy {
		t.Errorf("buckets after prune = %d (busy kept: %v), want only busy", n, busy)
	}
}

func TestDisabled(t *testing.T) {
	for _, cfg := range []Config{{}, {Burst: 5}, {Window: time.Second}} {
		l := New(cfg)
		for i := 0; i < 100; i++ {
			if !l.Allow("p1") {
				t.Fatalf("%+v: request %d denied", cfg, i)
			}
		}
	}

	var nilLimiter *Limiter
	if !nilLimiter.Allow("p1") {
		t.Error("nil limiter should allow")
	}
	nilLimiter.Forget("p1")
}

func TestConcurrentAllow(t *testing.T) {
	l, _ := newTestLimiter(Config{Burst: 50, Window: time.Hour})
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("p1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}
