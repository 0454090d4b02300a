package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	downloaded INTEGER NOT NULL DEFAULT 0,
	total INTEGER,
	resumable INTEGER NOT NULL DEFAULT 0,
	capability_checked INTEGER NOT NULL DEFAULT 0,
	queue_order INTEGER NOT NULL DEFAULT 0,
	filename TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_queue_order ON tasks(queue_order);

CREATE TABLE IF NOT EXISTS archive (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	status TEXT NOT NULL,
	downloaded INTEGER NOT NULL DEFAULT 0,
	total INTEGER,
	resumable INTEGER NOT NULL DEFAULT 0,
	capability_checked INTEGER NOT NULL DEFAULT 0,
	queue_order INTEGER NOT NULL DEFAULT 0,
	filename TEXT NOT NULL DEFAULT '',
	archived_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archive_archived_at ON archive(archived_at);
`

// Store is a SQLite-backed TaskStore. All writes go through a single
// mutex-guarded *sql.DB connection so the "single logical writer lane"
// contract from the engine's concurrency model holds even though
// database/sql itself would otherwise happily interleave writers.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if absent) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error, serialized behind s.mu.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
