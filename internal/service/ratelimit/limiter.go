// Package ratelimit implements a fixed-window attempt counter keyed by caller.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = time.Minute
	// DefaultLoginLimit is the number of login attempts allowed per window.
	DefaultLoginLimit = 5
	// DefaultMutationLimit is the number of configuration writes allowed per window.
	DefaultMutationLimit = 10
)

// bucket counts attempts inside the window ending at resetAt.
type bucket struct {
	count   int
	resetAt time.Time
}

// Options configures a Limiter.
type Options struct {
	Limit  int
	Window time.Duration
	Clock  clock.Clock
}

// Limiter admits at most Limit attempts per key inside each Window.
// One instance serves one route class; keys of different classes never share a counter.
type Limiter struct {
	limit  int
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

// New constructs a Limiter. Zero values fall back to the login defaults.
func New(opts Options) *Limiter {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLoginLimit
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Limiter{
		limit:   opts.Limit,
		window:  opts.Window,
		clock:   opts.Clock,
		buckets: make(map[string]*bucket),
	}
}

// Limit returns the per-window attempt budget.
func (l *Limiter) Limit() int { return l.limit }

// Allow records an attempt for key and reports whether it is admitted.
// A key with no bucket, or whose window has passed, starts a fresh window
// with a count of one. A key already at the limit is rejected without
// incrementing.
func (l *Limiter) Allow(key string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		l.buckets[key] = &bucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// RetryAfter returns how long key must wait before its window resets.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.After(b.resetAt) {
		return 0
	}
	return b.resetAt.Sub(now)
}

// Sweep drops buckets whose window has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps expired buckets every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	ticker := l.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
