package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
)

const (
	maxQueryLimit      = 10000
	defaultQueryLimit  = 1000
	flushRetryAttempts = 3
	backpressureFactor = 10 // high-water mark = bufferSize * this, spec §5
)

// ChangeSource is the tagged origin of a recorded event (spec §3).
type ChangeSource string

const (
	SourcePoll      ChangeSource = "poll"
	SourceSDKUpdate ChangeSource = "sdk-update"
	SourceSet       ChangeSource = "set"
)

// Event is one control value transition, as handed to the recorder by the
// change-group engine's publish hook.
type Event struct {
	TimestampMS   int64
	GroupID       string
	ComponentName string
	ControlName   string
	ControlPath   string
	Value         interface{}
	PreviousValue interface{}
	Source        ChangeSource
}

// Stats is the statistics surface (spec §4.D).
type Stats struct {
	TotalEvents    int64
	UniqueControls int64
	UniqueGroups   int64
	OldestTSMS     int64
	NewestTSMS     int64
	OnDiskBytes    int64
	BufferLength   int
	DroppedEvents  int64
}

// Query is the recorder's read surface (spec §4.D).
type Query struct {
	StartTimeMS    int64
	EndTimeMS      int64
	GroupID        string
	ControlNames   []string
	ComponentNames []string
	Limit          int
	Offset         int
}

// QueryResult wraps the matched events plus a truncation flag (spec §8).
type QueryResult struct {
	Events    []Event
	Truncated bool
}

// Recorder buffers events in memory and flushes them in batches to the
// current day's SQLite segment.
type Recorder struct {
	mu sync.Mutex

	dir           string
	bufferSize    int
	flushInterval time.Duration
	retentionDays int

	buffer []Event
	db     *sql.DB
	day    string // YYYY-MM-DD the open db covers

	disabled bool
	dropped  int64

	monitored map[string]bool

	now func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Options configure a Recorder, mirroring config.RecorderConfig.
type Options struct {
	Dir           string
	BufferSize    int
	FlushInterval time.Duration
	RetentionDays int
}

// New constructs a Recorder but does not open a segment file until the
// first flush of a non-empty buffer, or the first Query or Stats call.
// Start does not open one.
func New(opts Options) *Recorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 100 * time.Millisecond
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 7
	}
	return &Recorder{
		dir:           opts.Dir,
		bufferSize:    opts.BufferSize,
		flushInterval: opts.FlushInterval,
		retentionDays: opts.RetentionDays,
		monitored:     make(map[string]bool),
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// Monitor marks a group id as recorded; events for unmonitored groups are
// discarded at Record time (spec §4.D step 2).
func (r *Recorder) Monitor(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitored[groupID] = true
}

// Unmonitor stops recording events for groupID.
func (r *Recorder) Unmonitor(groupID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.monitored, groupID)
}

// Start launches the periodic flush loop and the daily 03:00 maintenance
// task.
func (r *Recorder) Start() {
	r.wg.Add(2)
	go r.flushLoop()
	go r.maintenanceLoop()
}

// Stop drains the buffer and stops background loops.
func (r *Recorder) Stop() error {
	close(r.stopCh)
	r.wg.Wait()
	return r.flush()
}

// Record appends an event to the write buffer if its group is monitored.
// Disabled recorders (segment open failure) silently drop events; callers
// that depend on recording should check Disabled() first.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disabled || !r.monitored[ev.GroupID] {
		return
	}

	highWater := r.bufferSize * backpressureFactor
	if len(r.buffer) >= highWater {
		r.buffer = r.buffer[1:]
		r.dropped++
		logger.Warnw("recorder buffer over high-water mark, dropping oldest event",
			"buffer_len", len(r.buffer), "high_water", highWater)
		r.buffer = append(r.buffer, ev)
		return
	}

	r.buffer = append(r.buffer, ev)
	if len(r.buffer) >= r.bufferSize {
		go r.flushAsync()
	}
}

func (r *Recorder) flushAsync() {
	if err := r.flush(); err != nil {
		logger.Errorw("recorder flush failed", "error", err.Error())
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.flush(); err != nil {
				logger.Errorw("recorder periodic flush failed", "error", err.Error())
			}
		}
	}
}

// Disabled reports whether the recorder has given up after a segment open
// failure (spec §4.D: "recording is disabled for the session").
func (r *Recorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled
}

func (r *Recorder) flush() error {
	r.mu.Lock()
	if len(r.buffer) == 0 || r.disabled {
		r.mu.Unlock()
		return nil
	}
	batch := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	db, err := r.currentSegment()
	if err != nil {
		r.mu.Lock()
		r.disabled = true
		r.mu.Unlock()
		logger.Errorw("recorder disabled: cannot open event store segment", "error", err.Error())
		return errors.WrapKind(err, errors.KindPersistence, "open event store segment")
	}

	var lastErr error
	for attempt := 0; attempt < flushRetryAttempts; attempt++ {
		if err := writeBatch(db, batch); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	logger.Errorw("recorder dropping batch after exhausting retries",
		"batch_size", len(batch), "error", lastErr.Error())
	r.mu.Lock()
	r.dropped += int64(len(batch))
	r.mu.Unlock()
	return errors.WrapKind(lastErr, errors.KindPersistence, "flush event batch")
}

func writeBatch(db *sql.DB, batch []Event) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO events
		(ts_ms, group_id, control_path, component_name, control_name, value_json, prev_value_json, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, ev := range batch {
		valueJSON, _ := json.Marshal(ev.Value)
		var prevJSON []byte
		if ev.PreviousValue != nil {
			prevJSON, _ = json.Marshal(ev.PreviousValue)
		}
		if _, err := stmt.Exec(ev.TimestampMS, ev.GroupID, ev.ControlPath, ev.ComponentName, ev.ControlName,
			string(valueJSON), nullableString(prevJSON), string(ev.Source)); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func nullableString(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

func (r *Recorder) currentSegment() (*sql.DB, error) {
	day := r.now().UTC().Format("2006-01-02")

	r.mu.Lock()
	if r.db != nil && r.day == day {
		db := r.db
		r.mu.Unlock()
		return db, nil
	}
	prior := r.db
	r.mu.Unlock()

	path := filepath.Join(r.dir, fmt.Sprintf("events-%s.db", day))
	db, err := openSegment(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.db = db
	r.day = day
	r.mu.Unlock()

	if prior != nil {
		prior.Close()
	}
	return db, nil
}
