package auth

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter throttles attempts per identifier over a fixed window. It is
// keyed by the submitted email rather than the client IP: an attacker
// rotating IPs against one victim is still throttled, and a shared office IP
// is not penalized. Records are process-local; the expiry sweep only bounds
// memory, never correctness.
type RateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	now     func() time.Time
	records map[string]*rateRecord
}

type rateRecord struct {
	count   int
	resetAt time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithLimiterClock overrides the time source (useful for tests).
func WithLimiterClock(fn func() time.Time) RateLimiterOption {
	return func(l *RateLimiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewRateLimiter constructs a limiter allowing max attempts per window.
func NewRateLimiter(max int, window time.Duration, opts ...RateLimiterOption) *RateLimiter {
	l := &RateLimiter{
		max:     max,
		window:  window,
		now:     time.Now,
		records: make(map[string]*rateRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLimited reports whether the identifier has exhausted its window.
func (l *RateLimiter) IsLimited(identifier string) bool {
	key := normalizeIdentifier(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return false
	}
	if !l.now().Before(rec.resetAt) {
		return false
	}
	return rec.count >= l.max
}

// RecordAttempt counts an attempt in the current window, starting a new
// window if none exists or the previous one elapsed.
func (l *RateLimiter) RecordAttempt(identifier string) {
	key := normalizeIdentifier(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rec, ok := l.records[key]
	if !ok || !now.Before(rec.resetAt) {
		l.records[key] = &rateRecord{count: 1, resetAt: now.Add(l.window)}
		return
	}
	rec.count++
}

// SecondsUntilReset returns the whole seconds until the identifier's window
// resets, or zero when no live window exists.
func (l *RateLimiter) SecondsUntilReset(identifier string) int {
	key := normalizeIdentifier(identifier)
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return 0
	}
	remaining := rec.resetAt.Sub(l.now())
	if remaining <= 0 {
		return 0
	}
	secs := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		secs++
	}
	return secs
}

// Sweep drops expired records. Intended for a periodic background timer.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, rec := range l.records {
		if !now.Before(rec.resetAt) {
			delete(l.records, key)
			removed++
		}
	}
	return removed
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
