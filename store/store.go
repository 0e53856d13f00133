// Package store persists style rules in SQLite: one row per domain key,
// value = CSS source text. Absence of a row means "no rule".
//
// The backing database is opened with the production pragmas used across the
// chassis (WAL, busy_timeout, synchronous NORMAL). Backend failures wrap
// ErrUnavailable so callers can distinguish "unknown" from "absent".
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// ErrUnavailable is wrapped around every backend error. A Get that returns
// ErrUnavailable means the rule state is unknown, not that the rule is absent.
var ErrUnavailable = errors.New("store: backend unavailable")

// Schema for the style_rules table. Applied on Open.
const Schema = `
CREATE TABLE IF NOT EXISTS style_rules (
	domain     TEXT PRIMARY KEY,
	css        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store is the style rules database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the rules database at path, applies pragmas and
// the schema. The caller must blank-import a driver registering "sqlite":
//
//	import _ "modernc.org/sqlite"
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory rules database for testing. MaxOpenConns is
// pinned to 1 so every query hits the same database (each connection to
// ":memory:" would otherwise get its own). Closed automatically via t.Cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
