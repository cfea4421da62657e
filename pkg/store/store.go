// Package store provides SQLite-backed persistence for batches, tasks,
// conversation messages, model request/response pairs, and memory files.
//
// It is the single source of truth for execution state: the batch executor
// holds no long-lived state of its own, so restart safety comes entirely
// from re-reading these tables.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrAlreadyExists is returned when a unique insert collides.
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrCounterExhausted is returned when a counter increment would
	// violate completed+failed <= task_count.
	ErrCounterExhausted = errors.New("store: counter would exceed task count")
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	task_count INTEGER NOT NULL,
	completed_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	browser_session_id TEXT NOT NULL DEFAULT '',
	stop_requested INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL DEFAULT '',
	batch_index INTEGER NOT NULL DEFAULT 0,
	prompt TEXT NOT NULL,
	status TEXT NOT NULL,
	current_iteration INTEGER NOT NULL DEFAULT 0,
	result_message TEXT NOT NULL DEFAULT '',
	stop_requested INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_batch ON tasks(batch_id, batch_index);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS model_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	request TEXT NOT NULL,
	response TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_calls_task ON model_calls(task_id, created_at, seq);

CREATE TABLE IF NOT EXISTS memory_files (
	path TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Store provides SQLite-backed persistence.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and runs
// migrations. Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// Sequential writer model: a single connection avoids SQLITE_BUSY
	// between the executor and stop/resume callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
