package changegroup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu     sync.Mutex
	values map[string]ControlValue
}

func newFakeSource() *fakeSource {
	return &fakeSource{values: make(map[string]ControlValue)}
}

func (f *fakeSource) set(name string, value interface{}, str string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = ControlValue{Value: value, String: str}
}

func (f *fakeSource) CurrentValue(name string) (ControlValue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[name]
	return v, ok
}

func TestEngine_CreateAddPoll_Baseline(t *testing.T) {
	src := newFakeSource()
	src.set("Gain1.gain", -20.0, "-20dB")

	e := NewEngine(src)
	_, err := e.Create("g1")
	require.NoError(t, err)
	require.NoError(t, e.AddControls("g1", []string{"Gain1.gain"}))

	ev, err := e.Poll("g1")
	require.NoError(t, err)
	assert.Len(t, ev.Changes, 1, "first poll after subscribe baselines every control")
	assert.Equal(t, uint64(1), ev.Sequence)

	ev2, err := e.Poll("g1")
	require.NoError(t, err)
	assert.Empty(t, ev2.Changes, "second immediate poll with no change emits nothing")
	assert.Equal(t, uint64(2), ev2.Sequence)
}

func TestEngine_PollAll_ReportsEveryControl(t *testing.T) {
	src := newFakeSource()
	src.set("Gain1.gain", -20.0, "-20dB")
	src.set("Gain1.mute", false, "false")

	e := NewEngine(src)
	_, err := e.Create("g1")
	require.NoError(t, err)
	require.NoError(t, e.AddControls("g1", []string{"Gain1.gain", "Gain1.mute"}))

	// baseline poll, then poll again with nothing changed.
	_, err = e.Poll("g1")
	require.NoError(t, err)

	ev, err := e.PollAll("g1")
	require.NoError(t, err)
	assert.Len(t, ev.Changes, 2, "showAll reports every member control regardless of delta")
}

func TestEngine_Poll_UnknownGroup(t *testing.T) {
	e := NewEngine(newFakeSource())
	_, err := e.Poll("missing")
	assert.Error(t, err)
}

func TestEngine_AddControlTwice_IsNoOp(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 1.0, "1")
	e := NewEngine(src)
	e.Create("g1")
	require.NoError(t, e.AddControls("g1", []string{"A.b"}))
	require.NoError(t, e.AddControls("g1", []string{"A.b"}))

	g, err := e.Get("g1")
	require.NoError(t, err)
	assert.Len(t, g.Controls(), 1)
}

func TestEngine_Invalidate_RebaselinesNextPoll(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 1.0, "1")
	e := NewEngine(src)
	e.Create("g1")
	e.AddControls("g1", []string{"A.b"})
	e.Poll("g1")

	require.NoError(t, e.Invalidate("g1"))
	ev, err := e.Poll("g1")
	require.NoError(t, err)
	assert.Len(t, ev.Changes, 1)
}

func TestEngine_DestroyRemovesGroup(t *testing.T) {
	e := NewEngine(newFakeSource())
	e.Create("g1")
	require.NoError(t, e.Destroy("g1"))

	assert.NotContains(t, e.List(), "g1")
	_, err := e.Poll("g1")
	assert.Error(t, err)
}

func TestEngine_SequenceStrictlyIncreasing(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 1.0, "1")
	e := NewEngine(src)
	e.Create("g1")
	e.AddControls("g1", []string{"A.b"})

	var last uint64
	for i := 0; i < 5; i++ {
		src.set("A.b", float64(i), "")
		ev, err := e.Poll("g1")
		require.NoError(t, err)
		assert.Greater(t, ev.Sequence, last)
		last = ev.Sequence
	}
}

func TestEngine_AutoPoll_RejectsLowRate(t *testing.T) {
	e := NewEngine(newFakeSource())
	e.Create("g1")
	err := e.AutoPoll("g1", 10*time.Millisecond)
	assert.Error(t, err)
}

func TestEngine_AutoPoll_EmitsOnSchedule(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 0.0, "0")
	e := NewEngine(src)
	e.Create("g1")
	e.AddControls("g1", []string{"A.b"})

	var mu sync.Mutex
	var events []Event
	e.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	require.NoError(t, e.AutoPoll("g1", minAutoPollInterval))
	defer e.StopAutoPoll("g1")

	src.set("A.b", 1.0, "1")
	time.Sleep(minAutoPollInterval * 5)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, events)
}

func TestEngine_AutoPoll_SkipsTicksWhileDisconnected(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 0.0, "0")
	e := NewEngine(src)
	e.Create("g1")
	e.AddControls("g1", []string{"A.b"})

	var connected atomic.Bool
	e.SetConnectedCheck(connected.Load)

	var mu sync.Mutex
	var events []Event
	e.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	require.NoError(t, e.AutoPoll("g1", minAutoPollInterval))
	defer e.StopAutoPoll("g1")

	time.Sleep(minAutoPollInterval * 5)
	mu.Lock()
	assert.Empty(t, events, "auto-poll must not tick while the connected check reports false")
	mu.Unlock()

	connected.Store(true)
	time.Sleep(minAutoPollInterval * 5)
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, events, "auto-poll resumes once the connected check reports true")
}

func TestEngine_AutoPoll_FailureLimitEmitsErrorEventAndStopsTimer(t *testing.T) {
	src := newFakeSource()
	e := NewEngine(src)
	e.Create("g1")
	require.NoError(t, e.AutoPoll("g1", minAutoPollInterval))

	var mu sync.Mutex
	var events []Event
	e.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	e.emitAutoPollFailure("g1")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Error)
	assert.Empty(t, events[0].Changes)

	g, err := e.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, StateSubscribed, g.State())
}

func TestEngine_DestroyStopsAutoPollTimer(t *testing.T) {
	src := newFakeSource()
	src.set("A.b", 0.0, "0")
	e := NewEngine(src)
	e.Create("g1")
	e.AddControls("g1", []string{"A.b"})
	require.NoError(t, e.AutoPoll("g1", minAutoPollInterval))
	require.NoError(t, e.Destroy("g1"))

	var mu sync.Mutex
	count := 0
	e.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	time.Sleep(minAutoPollInterval * 5)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, count, "destroyed group's timer must not fire")
}
