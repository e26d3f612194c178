package qsys

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's own state machine, observable
// independently of the connection State above (spec §4.A).
type BreakerState string

const (
	BreakerClosed   BreakerState = "Closed"
	BreakerOpen     BreakerState = "Open"
	BreakerHalfOpen BreakerState = "HalfOpen"
)

const (
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 10 * time.Second
	halfOpenCooldown        = 30 * time.Second
)

// breaker wraps sendCommand: N consecutive failures open it; after a
// cool-down a single probe is admitted; success closes it, failure
// reopens it with a longer cool-down.
type breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state         BreakerState
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// allow reports whether a command may proceed, transitioning Open->HalfOpen
// once the cool-down has elapsed.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return true
	case BreakerHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false
	b.state = BreakerClosed
}

func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probeInFlight = false
		b.state = BreakerOpen
		b.cooldown = halfOpenCooldown
		b.openedAt = time.Now()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State returns the breaker's current state, for diagnostics tooling.
func (b *breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
