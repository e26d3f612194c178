package changegroup

import (
	"context"
	"sync"
	"time"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
)

// autoPollTimer runs Engine.Poll on a fixed interval until Stop is called.
// Ten consecutive failures stop the timer and emit an error event while
// preserving the group (spec §4.B).
type autoPollTimer struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newAutoPollTimer() *autoPollTimer {
	ctx, cancel := context.WithCancel(context.Background())
	return &autoPollTimer{ctx: ctx, cancel: cancel}
}

func (t *autoPollTimer) Start(interval time.Duration, poll func() error, onFailureLimit func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if err := poll(); err != nil {
					failures++
					logger.Warnw("auto-poll failure", "consecutive_failures", failures, "error", err.Error())
					if failures >= autoPollFailureLimit {
						logger.Errorw("auto-poll stopping after repeated failures", "consecutive_failures", failures)
						if onFailureLimit != nil {
							onFailureLimit()
						}
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()
}

func (t *autoPollTimer) Stop() {
	t.cancel()
	t.wg.Wait()
}

// AutoPoll enables or replaces the auto-poll timer for a group. rate must
// be >= minAutoPollInterval (spec §8: rate < 0.05s rejected).
func (e *Engine) AutoPoll(id string, rate time.Duration) error {
	if rate < minAutoPollInterval {
		return errors.Newfk(errors.KindValidation, "auto-poll rate must be >= %s, got %s", minAutoPollInterval, rate)
	}

	g, err := e.Get(id)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.autoTimer != nil {
		prior := g.autoTimer
		g.autoTimer = nil
		g.mu.Unlock()
		prior.Stop() // replace atomically: stop the old timer outside the lock
		g.mu.Lock()
	}

	g.pollRate = rate
	g.state = StateAutoPolling
	timer := newAutoPollTimer()
	g.autoTimer = timer
	g.mu.Unlock()

	timer.Start(rate, func() error {
		if !e.isConnected() {
			logger.Debugw("auto-poll tick skipped, core not connected", "group", id)
			return nil
		}
		_, err := e.Poll(id)
		return err
	}, func() {
		e.emitAutoPollFailure(id)
	})
	return nil
}

// emitAutoPollFailure reverts a group out of AutoPolling and publishes an
// error event once its timer gives up after autoPollFailureLimit
// consecutive failures (spec §4.B).
func (e *Engine) emitAutoPollFailure(id string) {
	g, err := e.Get(id)
	if err != nil {
		return
	}

	g.mu.Lock()
	g.autoTimer = nil
	if g.state == StateAutoPolling {
		g.state = StateSubscribed
	}
	g.sequence++
	seq := g.sequence
	g.mu.Unlock()

	now := time.Now()
	e.publish(Event{
		GroupID:     id,
		Sequence:    seq,
		TimestampNS: now.UnixNano(),
		TimestampMS: now.UnixMilli(),
		Error:       "auto-poll stopped after repeated failures",
	})
}

// StopAutoPoll cancels a group's auto-poll timer without destroying the
// group, reverting it to Subscribed.
func (e *Engine) StopAutoPoll(id string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}

	g.mu.Lock()
	timer := g.autoTimer
	g.autoTimer = nil
	if g.state == StateAutoPolling {
		g.state = StateSubscribed
	}
	g.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	return nil
}
