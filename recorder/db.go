// Package recorder persists change-group events to daily SQLite segments,
// with retention cleanup, query, and statistics surfaces (spec §4.D).
package recorder

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"

	"github.com/qsysmcp/broker/errors"
	"github.com/qsysmcp/broker/logger"
)

const (
	sqliteJournalMode   = "WAL"
	sqliteSynchronous   = "NORMAL"
	sqliteBusyTimeoutMS = 5000
	sqliteCacheSizeKB   = 10 * 1024 // ~10MB page cache, spec §4.D
)

// openSegment opens (creating if needed) the SQLite file at path with the
// pragmas spec §4.D requires, then applies migrations.
func openSegment(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create event store directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open segment %s", path)
	}

	pragmas := []string{
		"PRAGMA journal_mode = " + sqliteJournalMode,
		"PRAGMA synchronous = " + sqliteSynchronous,
		"PRAGMA busy_timeout = 5000",
		"PRAGMA cache_size = -" + strconv.Itoa(sqliteCacheSizeKB),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply pragma %q on %s", p, path)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate segment %s", path)
	}

	logger.Infow("event store segment opened", "path", path)
	return db, nil
}
