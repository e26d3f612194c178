package changegroup

import (
	"sync"
	"time"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
)

// ValueSource resolves a control's current value. The adapter's control
// index implements this; the engine has no direct core access.
type ValueSource interface {
	CurrentValue(name string) (ControlValue, bool)
}

// Subscriber receives every emitted event, totally ordered per group
// (spec §4.C). The recorder is the canonical subscriber.
type Subscriber func(Event)

const minAutoPollInterval = 50 * time.Millisecond // spec §8: rate < 0.05s rejected
const autoPollFailureLimit = 10

// Engine owns the registry of groups and their auto-poll timers.
type Engine struct {
	mu     sync.Mutex
	groups map[string]*Group

	source      ValueSource
	subscribers []Subscriber
	connected   func() bool
}

// NewEngine constructs an Engine backed by source for current-value lookups.
func NewEngine(source ValueSource) *Engine {
	return &Engine{
		groups: make(map[string]*Group),
		source: source,
	}
}

// SetConnectedCheck installs the predicate auto-poll ticks consult before
// polling. While it reports false, auto-poll skips the tick instead of
// polling stale cached values during a reconnect (spec §5: auto-poll is
// deferred until the core connection is back up). A nil check (the
// default) means auto-poll always runs.
func (e *Engine) SetConnectedCheck(f func() bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = f
}

func (e *Engine) isConnected() bool {
	e.mu.Lock()
	f := e.connected
	e.mu.Unlock()
	if f == nil {
		return true
	}
	return f()
}

// Subscribe registers a handler invoked for every "changes" event emitted
// by any group.
func (e *Engine) Subscribe(s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, s)
}

func (e *Engine) publish(ev Event) {
	e.mu.Lock()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	for _, s := range subs {
		s(ev)
	}
}

// Create registers a new, empty group. Creating an id that already exists
// is idempotent and returns the existing group.
func (e *Engine) Create(id string) (*Group, error) {
	if id == "" {
		return nil, errors.NewKind(errors.KindValidation, "change group id must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if g, ok := e.groups[id]; ok {
		return g, nil
	}
	g := newGroup(id)
	e.groups[id] = g
	return g, nil
}

// Get returns the group for id, or an UnknownGroupError.
func (e *Engine) Get(id string) (*Group, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, ok := e.groups[id]
	if !ok {
		return nil, errors.Newfk(errors.KindUnknownGroup, "unknown change group %q", id)
	}
	return g, nil
}

// List returns the ids of all non-destroyed groups.
func (e *Engine) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.groups))
	for id, g := range e.groups {
		if g.State() != StateDestroyed {
			ids = append(ids, id)
		}
	}
	return ids
}

// AddControls adds control names to a group. Unknown-to-the-index controls
// are logged but not rejected (spec §4.B).
func (e *Engine) AddControls(id string, names []string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, name := range names {
		if _, ok := e.source.CurrentValue(name); !ok {
			logger.Warnw("adding control unknown to discovery index", logger.FieldControl, name)
		}
		g.addControl(name)
	}
	return nil
}

// RemoveControls removes control names from a group.
func (e *Engine) RemoveControls(id string, names []string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range names {
		g.removeControl(name)
	}
	return nil
}

// Clear empties a group's membership but preserves the group itself.
func (e *Engine) Clear(id string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clear()
	return nil
}

// Invalidate discards last-seen values so the next poll reports every
// membership control as changed.
func (e *Engine) Invalidate(id string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.invalidate()
	return nil
}

// Destroy removes a group and cancels its auto-poll timer. Terminal.
func (e *Engine) Destroy(id string) error {
	e.mu.Lock()
	g, ok := e.groups[id]
	if !ok {
		e.mu.Unlock()
		return errors.Newfk(errors.KindUnknownGroup, "unknown change group %q", id)
	}
	delete(e.groups, id)
	e.mu.Unlock()

	g.mu.Lock()
	if g.autoTimer != nil {
		g.autoTimer.Stop()
		g.autoTimer = nil
	}
	g.state = StateDestroyed
	g.mu.Unlock()
	return nil
}

// Subscribed marks a group as explicitly subscribed (without auto-poll).
func (e *Engine) Subscribed(id string) error {
	g, err := e.Get(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateAutoPolling {
		g.state = StateSubscribed
	}
	return nil
}

// Poll computes and emits the delta set for a group: controls whose
// current value differs from the last-seen value (or every control, on
// first poll after invalidate/subscribe). Every call advances the group's
// sequence and publishes exactly one Event, with at most one Change per
// control; a poll where nothing moved publishes an Event with no Changes.
// Poll also returns that Event so callers (the poll_change_group tool) can
// report it.
func (e *Engine) Poll(id string) (Event, error) {
	g, err := e.Get(id)
	if err != nil {
		return Event{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var changes []Change
	for _, name := range g.controls {
		cv, ok := e.source.CurrentValue(name)
		if !ok {
			continue
		}

		prev, seen := g.lastSeen[name]
		baseline := g.baseline[name]

		if !seen || baseline || !valuesEqual(prev.Value, cv.Value) {
			var previous interface{}
			if seen {
				previous = prev.Value
			}
			changes = append(changes, Change{
				Name:     name,
				Value:    cv.Value,
				String:   cv.String,
				Previous: previous,
			})
		}

		g.lastSeen[name] = cv
		delete(g.baseline, name)
	}

	g.sequence++
	now := time.Now()
	ev := Event{
		GroupID:     id,
		Sequence:    g.sequence,
		TimestampNS: now.UnixNano(),
		TimestampMS: now.UnixMilli(),
		Changes:     changes,
	}

	e.publish(ev)
	return ev, nil
}

// PollAll runs Poll, then replaces the result's Changes with every
// membership control's current value, not just the ones that moved
// (poll_change_group's showAll option, spec §4.F).
func (e *Engine) PollAll(id string) (Event, error) {
	ev, err := e.Poll(id)
	if err != nil {
		return ev, err
	}

	g, err := e.Get(id)
	if err != nil {
		return ev, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	full := make([]Change, 0, len(g.controls))
	for _, name := range g.controls {
		cv, ok := g.lastSeen[name]
		if !ok {
			continue
		}
		full = append(full, Change{Name: name, Value: cv.Value, String: cv.String})
	}
	ev.Changes = full
	return ev, nil
}

func valuesEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
