package ratelimit

import (
	"sync"
	"time"
)

// Config configures a Limiter.
type Config struct {
	// Burst is the bucket size: how many requests may arrive at once.
	Burst int

	// Window is how long an empty bucket takes to refill completely.
	Window time.Duration
}

// Enabled reports whether the config limits anything.
func (c Config) Enabled() bool {
	return c.Burst > 0 && c.Window > 0
}

// bucket is a token bucket.
type bucket struct {
	available  float64
	lastRefill time.Time
}

// refill adds tokens for the time elapsed since the last refill.
func (b *bucket) refill(now time.Time, cfg Config) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.available += float64(cfg.Burst) * float64(elapsed) / float64(cfg.Window)
	if b.available > float64(cfg.Burst) {
		b.available = float64(cfg.Burst)
	}
	b.lastRefill = now
}

// Limiter holds one bucket per key. It is safe for concurrent use.
// A Limiter with a disabled Config allows everything.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token from key's bucket and reports whether there was one.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.cfg.Enabled() {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{available: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[key] = b
	}
	b.refill(now, l.cfg)
	if b.available < 1 {
		return false
	}
	b.available--
	return true
}

// Available returns the whole tokens left for key.
func (l *Limiter) Available(key string) int {
	if l == nil || !l.cfg.Enabled() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return l.cfg.Burst
	}
	b.refill(l.now(), l.cfg)
	return int(b.available)
}

// Forget drops key's bucket.
func (l *Limiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// Prune drops buckets that have refilled completely. A dropped key starts
// over with a full bucket, so pruning never changes what Allow returns.
func (l *Limiter) Prune() {
	if l == nil || !l.cfg.Enabled() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, b := range l.buckets {
		b.refill(now, l.cfg)
		if b.available >= float64(l.cfg.Burst) {
			delete(l.buckets, key)
		}
	}
}
