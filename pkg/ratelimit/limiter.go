// Package ratelimit implements a fixed-window request throttle with bounded
// memory, keyed by an external identifier such as a client IP.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultWindow is the length of one counting window.
	DefaultWindow = 10 * time.Second

	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 10

	// DefaultMaxKeys caps the number of tracked keys. When exceeded, expired
	// entries are purged first, then oldest entries are evicted. This is a
	// best-effort memory guard, not a precise LRU: stale entries self-expire
	// within one window regardless.
	DefaultMaxKeys = 10000
)

// Result is the outcome of a rate-limit check. Exceeding the limit is a
// first-class result, not an error.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type window struct {
	count   int
	startAt time.Time
}

// Limiter is a fixed-window counter safe for concurrent callers in a single
// process. Counters are not shared across processes; clustered deployments
// get approximate limiting.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	window  time.Duration
	limit   int
	maxKeys int
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow overrides the window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithLimit overrides the per-window request cap.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithMaxKeys overrides the tracked-key ceiling.
func WithMaxKeys(n int) Option {
	return func(l *Limiter) { l.maxKeys = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter with the default window, limit and key ceiling.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		window:  DefaultWindow,
		limit:   DefaultLimit,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Check counts one request against key and reports whether it is allowed.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.window {
		if !ok && len(l.windows) >= l.maxKeys {
			l.evictLocked(now)
		}

		w = &window{startAt: now}
		l.windows[key] = w
	}

	resetAt := w.startAt.Add(l.window)

	if w.count >= l.limit {
		return Result{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}
	}

	w.count++

	return Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - w.count,
		ResetAt:   resetAt,
	}
}

// Size returns the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

// evictLocked purges expired windows, then removes oldest windows until the
// map is under the ceiling.
func (l *Limiter) evictLocked(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.startAt) >= l.window {
			delete(l.windows, key)
		}
	}

	for len(l.windows) >= l.maxKeys {
		oldestKey := ""

		var oldestStart time.Time

		for key, w := range l.windows {
			if oldestKey == "" || w.startAt.Before(oldestStart) {
				oldestKey = key
				oldestStart = w.startAt
			}
		}

		delete(l.windows, oldestKey)
	}
}
