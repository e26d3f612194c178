package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_AllowsUpToBurstThenRejects(t *testing.T) {
	l := New(60, 3) // 1 req/s refill, burst 3

	assert.True(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-a"), "fourth immediate request should exceed burst")
}

func TestLimiter_PerCallerIsolation(t *testing.T) {
	l := New(60, 1)

	assert.True(t, l.Allow("caller-a"))
	assert.False(t, l.Allow("caller-a"))
	assert.True(t, l.Allow("caller-b"), "a different caller has its own bucket")
}

func TestLimiter_RetryAfterIsBoundedByRefillInterval(t *testing.T) {
	l := New(60, 1) // 1 req/s
	l.Allow("caller-a")

	d := l.RetryAfter("caller-a")
	assert.LessOrEqual(t, d, 1100*time.Millisecond)
}

func TestLimiter_ZeroRPMDisablesLimiting(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("caller-a"))
	}
}

func TestLimiter_SustainedLoadConvergesToRefillRate(t *testing.T) {
	l := New(600, 1) // 10 req/s refill, burst 1
	l.now = func() time.Time { return time.Unix(0, 0) }

	start := l.now()
	accepted := 0
	for i := 0; i < 20; i++ {
		t := start.Add(time.Duration(i) * 50 * time.Millisecond) // offered at 20 req/s, 2x refill
		l.now = func() time.Time { return t }
		if l.Allow("caller-a") {
			accepted++
		}
	}
	// at 2x the refill rate, roughly half the offered load should be accepted
	assert.InDelta(t, 10, accepted, 4)
}
