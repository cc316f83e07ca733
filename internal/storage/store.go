// Package storage persists command transcripts to SQLite. Each executed
// command and its output is appended as one row, keyed by tab, so the
// export endpoint can reconstruct a readable log per tab or across the
// whole host.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/tabterm/host/internal/errors"
)

// Entry is one persisted transcript row.
type Entry struct {
	ID        int64
	TabID     string
	Command   string
	Output    string
	ErrorCode string // empty for successful commands
	CreatedAt time.Time
}

// Store wraps the SQLite transcript database. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	tab_id     TEXT NOT NULL,
	command    TEXT NOT NULL,
	output     TEXT NOT NULL DEFAULT '',
	error_code TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_transcript_tab ON transcript(tab_id, id);
`

// Open opens (creating if needed) the transcript database at path.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "failed to create database directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "failed to open database", err)
	}

	// modernc sqlite is not safe for concurrent writers on one
	// connection pool entry; a single connection keeps writes serial.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "failed to initialize schema", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Append records one command and its output for a tab.
func (s *Store) Append(tabID, command, output, errorCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO transcript (tab_id, command, output, error_code, created_at) VALUES (?, ?, ?, ?, ?)`,
		tabID, command, output, errorCode, time.Now().UTC(),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "failed to append transcript entry", err)
	}
	return nil
}

// Entries returns a tab's transcript oldest-first. A zero limit returns
// everything.
func (s *Store) Entries(tabID string, limit int) ([]Entry, error) {
	query := `SELECT id, tab_id, command, output, error_code, created_at
		FROM transcript WHERE tab_id = ? ORDER BY id`
	args := []interface{}{tabID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(query, args...)
}

// AllEntries returns the full transcript across every tab, oldest-first.
func (s *Store) AllEntries(limit int) ([]Entry, error) {
	query := `SELECT id, tab_id, command, output, error_code, created_at
		FROM transcript ORDER BY id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(query, args...)
}

// TabIDs returns the distinct tab identifiers present in the transcript,
// in first-seen order.
func (s *Store) TabIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT tab_id FROM transcript GROUP BY tab_id ORDER BY MIN(id)`)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to list tabs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to scan tab id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) query(query string, args ...interface{}) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to query transcript", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TabID, &e.Command, &e.Output, &e.ErrorCode, &e.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to scan transcript row", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
