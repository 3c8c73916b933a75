// Package ratelimit provides a fixed-window counter keyed by caller
// identifier. It gates credential issuance (login, signup, refresh)
// against brute force; authenticated traffic is not routed through it.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts calls per identifier inside a fixed window. Instances
// are independent; tests construct their own instead of sharing ambient
// state. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter and starts a background sweep that drops
// expired windows every sweepEvery. A non-positive sweepEvery disables
// the sweep; callers then bound memory themselves.
func New(sweepEvery time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if sweepEvery > 0 {
		go l.sweepLoop(sweepEvery)
	}
	return l
}

// Allow reports whether the caller identified by id may proceed, given at
// most maxRequests per windowSize. The first call in a window initializes
// the counter; once the count exceeds maxRequests the caller is rejected
// until the window resets.
func (l *Limiter) Allow(id string, maxRequests int, windowSize time.Duration) bool {
	if maxRequests <= 0 || windowSize <= 0 {
		return false
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[id]
	if !ok || now.After(w.resetAt) {
		l.windows[id] = &window{count: 1, resetAt: now.Add(windowSize)}
		return true
	}
	w.count++
	return w.count <= maxRequests
}

// Reset forgets the window for id. Used by tests and by operators after
// clearing an incident.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, id)
}

// Len returns the number of live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Close stops the background sweep. Idempotent.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, id)
		}
	}
}
