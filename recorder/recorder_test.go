package recorder

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(path string) error {
	return os.WriteFile(path, []byte("not a directory"), 0o644)
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	r := New(Options{Dir: t.TempDir(), BufferSize: 4, FlushInterval: time.Hour, RetentionDays: 7})
	return r
}

func TestRecorder_RecordRequiresMonitoring(t *testing.T) {
	r := newTestRecorder(t)
	r.Record(Event{GroupID: "g1", ControlPath: "A.b", Value: 1.0, Source: SourcePoll})

	require.NoError(t, r.flush())
	result, err := r.Query(Query{GroupID: "g1"})
	require.NoError(t, err)
	assert.Empty(t, result.Events, "unmonitored group's events must not be recorded")
}

func TestRecorder_RecordAndQuery(t *testing.T) {
	r := newTestRecorder(t)
	r.Monitor("g1")

	r.Record(Event{TimestampMS: 1000, GroupID: "g1", ComponentName: "Gain1", ControlName: "gain",
		ControlPath: "Gain1.gain", Value: -20.0, Source: SourcePoll})

	result, err := r.Query(Query{GroupID: "g1"})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "Gain1.gain", result.Events[0].ControlPath)
	assert.False(t, result.Truncated)
}

func TestRecorder_QueryLimitCappedAtHardMax(t *testing.T) {
	r := newTestRecorder(t)
	r.Monitor("g1")
	for i := 0; i < 5; i++ {
		r.Record(Event{TimestampMS: int64(i), GroupID: "g1", ControlPath: "A.b", Value: float64(i), Source: SourcePoll})
	}

	result, err := r.Query(Query{GroupID: "g1", Limit: 50000})
	require.NoError(t, err)
	assert.True(t, result.Truncated)
}

func TestRecorder_FlushOnBufferFull(t *testing.T) {
	r := newTestRecorder(t) // bufferSize = 4
	r.Monitor("g1")

	for i := 0; i < 4; i++ {
		r.Record(Event{TimestampMS: int64(i), GroupID: "g1", ControlPath: "A.b", Value: float64(i), Source: SourcePoll})
	}

	// the 4th append triggers an async flush; give it a moment.
	time.Sleep(50 * time.Millisecond)

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalEvents)
}

func TestRecorder_Stats(t *testing.T) {
	r := newTestRecorder(t)
	r.Monitor("g1")
	r.Record(Event{TimestampMS: 100, GroupID: "g1", ControlPath: "A.b", Value: 1.0, Source: SourcePoll})
	r.Record(Event{TimestampMS: 200, GroupID: "g1", ControlPath: "A.c", Value: 2.0, Source: SourcePoll})

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.UniqueControls)
	assert.Equal(t, int64(1), stats.UniqueGroups)
	assert.Equal(t, int64(100), stats.OldestTSMS)
	assert.Equal(t, int64(200), stats.NewestTSMS)
}

func TestRecorder_Backpressure_DropsOldest(t *testing.T) {
	r := New(Options{Dir: t.TempDir(), BufferSize: 2, FlushInterval: time.Hour, RetentionDays: 7})
	r.Monitor("g1")

	// high water = bufferSize * backpressureFactor = 20. Fill the buffer to
	// it directly, so no buffer-full flush can drain it first, then record
	// one more event.
	highWater := 2 * backpressureFactor
	r.mu.Lock()
	for i := 0; i < highWater; i++ {
		r.buffer = append(r.buffer, Event{TimestampMS: int64(i), GroupID: "g1", ControlPath: "A.b", Value: float64(i), Source: SourcePoll})
	}
	r.mu.Unlock()

	r.Record(Event{TimestampMS: int64(highWater), GroupID: "g1", ControlPath: "A.b", Value: float64(highWater), Source: SourcePoll})

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, int64(1), r.dropped)
	require.Len(t, r.buffer, highWater)
	assert.Equal(t, int64(1), r.buffer[0].TimestampMS, "the oldest event (ts 0) is dropped")
	assert.Equal(t, int64(highWater), r.buffer[highWater-1].TimestampMS)
}

func TestRecorder_Disabled_WhenDirUnwritable(t *testing.T) {
	// A regular file in the path where a directory component is expected
	// makes MkdirAll fail deterministically regardless of process
	// permissions.
	blocker := t.TempDir() + "/blocker"
	require.NoError(t, writeFile(blocker))

	r := New(Options{Dir: blocker + "/segments", BufferSize: 1, FlushInterval: time.Hour, RetentionDays: 7})
	r.Monitor("g1")
	r.Record(Event{GroupID: "g1", ControlPath: "A.b", Value: 1.0, Source: SourcePoll})

	time.Sleep(50 * time.Millisecond)
	assert.True(t, r.Disabled())
}
