package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/qsysmcp/broker/errors"
)

// Query flushes the pending buffer first, then executes against the
// current segment, guaranteeing read-your-writes within the process
// (spec §4.D).
func (r *Recorder) Query(q Query) (QueryResult, error) {
	if err := r.flush(); err != nil {
		return QueryResult{}, err
	}

	db, err := r.currentSegment()
	if err != nil {
		return QueryResult{}, errors.WrapKind(err, errors.KindPersistence, "open event store for query")
	}

	limit := q.Limit
	truncated := false
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
		truncated = true
	}

	clauses := []string{"1=1"}
	args := []interface{}{}

	if q.StartTimeMS > 0 {
		clauses = append(clauses, "ts_ms >= ?")
		args = append(args, q.StartTimeMS)
	}
	if q.EndTimeMS > 0 {
		clauses = append(clauses, "ts_ms <= ?")
		args = append(args, q.EndTimeMS)
	}
	if q.GroupID != "" {
		clauses = append(clauses, "group_id = ?")
		args = append(args, q.GroupID)
	}
	if len(q.ControlNames) > 0 {
		clauses = append(clauses, "control_path IN ("+placeholders(len(q.ControlNames))+")")
		for _, n := range q.ControlNames {
			args = append(args, n)
		}
	}
	if len(q.ComponentNames) > 0 {
		clauses = append(clauses, "component_name IN ("+placeholders(len(q.ComponentNames))+")")
		for _, n := range q.ComponentNames {
			args = append(args, n)
		}
	}

	sqlText := fmt.Sprintf(`SELECT ts_ms, group_id, control_path, component_name, control_name,
		value_json, prev_value_json, source FROM events WHERE %s
		ORDER BY ts_ms DESC LIMIT ? OFFSET ?`, strings.Join(clauses, " AND "))
	args = append(args, limit, q.Offset)

	rows, err := db.Query(sqlText, args...)
	if err != nil {
		return QueryResult{}, errors.WrapKind(err, errors.KindPersistence, "query events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var valueJSON string
		var prevJSON sql.NullString
		var source string

		if err := rows.Scan(&ev.TimestampMS, &ev.GroupID, &ev.ControlPath, &ev.ComponentName,
			&ev.ControlName, &valueJSON, &prevJSON, &source); err != nil {
			return QueryResult{}, errors.WrapKind(err, errors.KindPersistence, "scan event row")
		}

		json.Unmarshal([]byte(valueJSON), &ev.Value)
		if prevJSON.Valid {
			json.Unmarshal([]byte(prevJSON.String), &ev.PreviousValue)
		}
		ev.Source = ChangeSource(source)
		events = append(events, ev)
	}

	return QueryResult{Events: events, Truncated: truncated}, rows.Err()
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ",")
}

// Stats returns the statistics surface (spec §4.D), flushing first.
func (r *Recorder) Stats() (Stats, error) {
	if err := r.flush(); err != nil {
		return Stats{}, err
	}

	db, err := r.currentSegment()
	if err != nil {
		return Stats{}, errors.WrapKind(err, errors.KindPersistence, "open event store for stats")
	}

	var s Stats
	row := db.QueryRow(`SELECT COUNT(*), COUNT(DISTINCT control_path), COUNT(DISTINCT group_id),
		COALESCE(MIN(ts_ms), 0), COALESCE(MAX(ts_ms), 0) FROM events`)
	if err := row.Scan(&s.TotalEvents, &s.UniqueControls, &s.UniqueGroups, &s.OldestTSMS, &s.NewestTSMS); err != nil {
		return Stats{}, errors.WrapKind(err, errors.KindPersistence, "scan stats row")
	}

	size, err := segmentSize(r.dir, r.day)
	if err == nil {
		s.OnDiskBytes = size
	}

	r.mu.Lock()
	s.BufferLength = len(r.buffer)
	s.DroppedEvents = r.dropped
	r.mu.Unlock()

	return s, nil
}

func segmentSize(dir, day string) (int64, error) {
	info, err := os.Stat(filepath.Join(dir, "events-"+day+".db"))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// maintenanceLoop runs retention cleanup + vacuum once daily at 03:00
// local time (spec §3 lifecycle, §4.D rotation).
func (r *Recorder) maintenanceLoop() {
	defer r.wg.Done()

	for {
		wait := r.until0300()
		select {
		case <-r.stopCh:
			return
		case <-time.After(wait):
			r.runMaintenance()
		}
	}
}

func (r *Recorder) until0300() time.Duration {
	now := r.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

func (r *Recorder) runMaintenance() {
	cutoff := r.now().UTC().AddDate(0, 0, -r.retentionDays)
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "events-") || !strings.HasSuffix(name, ".db") {
			continue
		}
		dayStr := strings.TrimSuffix(strings.TrimPrefix(name, "events-"), ".db")
		day, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(r.dir, name))
			os.Remove(filepath.Join(r.dir, name+"-wal"))
			os.Remove(filepath.Join(r.dir, name+"-shm"))
		}
	}

	r.mu.Lock()
	db := r.db
	r.mu.Unlock()
	if db != nil {
		db.Exec("VACUUM")
	}
}
