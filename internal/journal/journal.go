// Package journal persists a local record of executed API calls.
//
// Each completed logical request against the card service becomes one
// row: method, path, final status, error kind, attempt count, and
// duration. The journal is diagnostic infrastructure — it never blocks
// or fails a call, and a journal that cannot be opened simply disables
// itself.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/decklab/cardbase/internal/cardapi"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// defaultMaxEntries bounds the journal size; the oldest rows beyond it
// are pruned on insert.
const defaultMaxEntries = 1000

// Entry is one journaled API call.
type Entry struct {
	ID         int64  `json:"id"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Status     int    `json:"status"`
	ErrKind    string `json:"err_kind,omitempty"`
	Attempts   int    `json:"attempts"`
	DurationMS int64  `json:"duration_ms"`
	At         string `json:"at"`
}

// Journal is the sqlite-backed call log.
type Journal struct {
	mu         sync.Mutex
	db         *sql.DB
	maxEntries int
}

// Open creates (or opens) the journal database at path and runs the
// schema migration. maxEntries <= 0 uses the default cap.
func Open(path string, maxEntries int) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("journal: pragma %q: %w", p, err)
		}
	}

	j := &Journal{db: db, maxEntries: maxEntries}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration: %w", err)
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			method      TEXT    NOT NULL,
			path        TEXT    NOT NULL,
			status      INTEGER NOT NULL DEFAULT 0,
			err_kind    TEXT    NOT NULL DEFAULT '',
			attempts    INTEGER NOT NULL DEFAULT 1,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			at          TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_calls_at ON calls(at DESC);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record persists one completed call and prunes rows beyond the entry
// cap. Errors are returned for the caller to log; a failed insert must
// never fail the API call it describes.
func (j *Journal) Record(rec cardapi.CallRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO calls (method, path, status, err_kind, attempts, duration_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Method, rec.Path, rec.Status, string(rec.ErrKind),
		rec.Attempts, rec.Duration.Milliseconds(),
		rec.At.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return err
	}

	_, err = j.db.Exec(
		`DELETE FROM calls WHERE id NOT IN (
			SELECT id FROM calls ORDER BY id DESC LIMIT ?
		)`, j.maxEntries)
	return err
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, method, path, status, err_kind, attempts, duration_ms, at
		 FROM calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Method, &e.Path, &e.Status, &e.ErrKind,
			&e.Attempts, &e.DurationMS, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats reports total call count and failure count.
func (j *Journal) Stats() (total, failed int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.db.QueryRow(`SELECT COUNT(*) FROM calls`).Scan(&total); err != nil {
		return 0, 0, err
	}
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM calls WHERE err_kind != ''`).Scan(&failed); err != nil {
		return 0, 0, err
	}
	return total, failed, nil
}
