// Package ratelimit provides a per-caller token bucket used by the MCP
// dispatcher to enforce spec §4.E's rate limit.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per caller id, lazily created on first
// use. now is injectable for deterministic tests.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rpm     int
	burst   int
	now     func() time.Time
}

// New constructs a Limiter refilling at rpm requests/minute with the given
// burst capacity.
func New(rpm, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rpm:     rpm,
		burst:   burst,
		now:     time.Now,
	}
}

func (l *Limiter) bucketFor(callerID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[callerID]
	if !ok {
		r := rate.Limit(float64(l.rpm) / 60.0)
		b = rate.NewLimiter(r, l.burst)
		l.buckets[callerID] = b
	}
	return b
}

// Allow reports whether callerID may proceed right now, consuming a token
// if so.
func (l *Limiter) Allow(callerID string) bool {
	if l.rpm <= 0 {
		return true
	}
	return l.bucketFor(callerID).AllowN(l.now(), 1)
}

// RetryAfter estimates how long callerID must wait before its next request
// would be allowed, for the RateLimitError payload (spec §7).
func (l *Limiter) RetryAfter(callerID string) time.Duration {
	if l.rpm <= 0 {
		return 0
	}
	b := l.bucketFor(callerID)
	r := b.Reserve()
	defer r.Cancel()
	return r.DelayFrom(l.now())
}

// Reset removes callerID's bucket, for tests.
func (l *Limiter) Reset(callerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, callerID)
}
