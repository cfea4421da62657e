package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MemoryFile is one persisted memory record: a normalized path, a single
// textual content blob, and its last-modified time.
type MemoryFile struct {
	Path      string
	Content   string
	UpdatedAt time.Time
}

// GetMemoryFile retrieves a memory file by normalized path.
func (s *Store) GetMemoryFile(ctx context.Context, path string) (*MemoryFile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, content, updated_at FROM memory_files WHERE path = ?`, path)
	var m MemoryFile
	err := row.Scan(&m.Path, &m.Content, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get memory file: %w", err)
	}
	return &m, nil
}

// InsertMemoryFile creates a new memory file, failing with
// ErrAlreadyExists if the path is taken.
func (s *Store) InsertMemoryFile(ctx context.Context, path, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_files (path, content, updated_at) VALUES (?, ?, ?)`,
		path, content, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("store: insert memory file: %w", err)
	}
	return nil
}

// UpdateMemoryFile replaces an existing file's content, failing with
// ErrNotFound if the path has no record.
func (s *Store) UpdateMemoryFile(ctx context.Context, path, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memory_files SET content = ?, updated_at = ? WHERE path = ?`,
		content, time.Now().UTC(), path)
	if err != nil {
		return fmt.Errorf("store: update memory file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update memory file: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMemoryFile removes the record at path. Absence afterwards is the
// only guarantee; deleting a missing path reports ErrNotFound.
func (s *Store) DeleteMemoryFile(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memory_files WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("store: delete memory file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete memory file: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameMemoryFile repoints a record's key. It fails with ErrNotFound if
// the source is missing and ErrAlreadyExists if the destination is taken.
func (s *Store) RenameMemoryFile(ctx context.Context, oldPath, newPath string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memory_files WHERE path = ?`, newPath).Scan(&exists)
		if err != nil {
			return fmt.Errorf("store: rename memory file: %w", err)
		}
		if exists > 0 {
			return ErrAlreadyExists
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE memory_files SET path = ?, updated_at = ? WHERE path = ?`,
			newPath, time.Now().UTC(), oldPath)
		if err != nil {
			return fmt.Errorf("store: rename memory file: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: rename memory file: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// isUniqueViolation detects a primary-key collision without importing the
// driver's error types; modernc.org/sqlite surfaces constraint failures
// with this message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
