// Package memory implements the agent's durable cross-iteration notes: a
// tiny file store keyed by normalized path, one textual record per task
// identifier, persisted through the store collaborator on every call.
//
// The operation set is deliberately narrow (view, create, str_replace,
// insert, delete, rename) and every violation surfaces as a typed error so
// the agent can react — NotFound on first run means "start fresh", never a
// crash.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steerhq/steer/pkg/store"
)

var (
	// ErrNotFound is returned when the path has no record, or str_replace
	// finds no occurrence of the old string.
	ErrNotFound = errors.New("memory: not found")
	// ErrAlreadyExists is returned when create or rename would clobber an
	// existing record. The agent must not silently overwrite cross-task
	// memory.
	ErrAlreadyExists = errors.New("memory: already exists")
	// ErrAmbiguousMatch is returned when str_replace's old string occurs
	// more than once; replacement must be unique.
	ErrAmbiguousMatch = errors.New("memory: ambiguous match")
	// ErrOutOfRange is returned when insert's line index is negative or
	// past the end of the file.
	ErrOutOfRange = errors.New("memory: line index out of range")
)

// pathPrefix is the structural prefix the agent's tool layer prepends to
// memory paths; it is stripped before keying the store.
const pathPrefix = "memories/"

// Backend is the slice of the persistence collaborator the store needs.
// *store.Store satisfies it.
type Backend interface {
	GetMemoryFile(ctx context.Context, path string) (*store.MemoryFile, error)
	InsertMemoryFile(ctx context.Context, path, content string) error
	UpdateMemoryFile(ctx context.Context, path, content string) error
	DeleteMemoryFile(ctx context.Context, path string) error
	RenameMemoryFile(ctx context.Context, oldPath, newPath string) error
}

// Store provides the memory-file operation set over a Backend.
// It has no cache: every call round-trips to persistence.
type Store struct {
	backend Backend
}

// NewStore creates a memory store over the given backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Normalize strips the structural prefix (and any leading slash) from a
// memory path.
func Normalize(path string) string {
	path = strings.TrimPrefix(path, "/")
	return strings.TrimPrefix(path, pathPrefix)
}

// View returns the content at path.
func (s *Store) View(ctx context.Context, path string) (string, error) {
	m, err := s.backend.GetMemoryFile(ctx, Normalize(path))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, Normalize(path))
	}
	if err != nil {
		return "", err
	}
	return m.Content, nil
}

// Create writes a new record at path, failing if one already exists.
func (s *Store) Create(ctx context.Context, path, content string) error {
	err := s.backend.InsertMemoryFile(ctx, Normalize(path), content)
	if errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, Normalize(path))
	}
	return err
}

// StrReplace replaces the unique occurrence of old with new in the record
// at path. Zero occurrences is NotFound; more than one is AmbiguousMatch
// and the content is left unchanged.
func (s *Store) StrReplace(ctx context.Context, path, old, new string) error {
	norm := Normalize(path)
	m, err := s.backend.GetMemoryFile(ctx, norm)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, norm)
	}
	if err != nil {
		return err
	}

	switch n := strings.Count(m.Content, old); {
	case n == 0:
		return fmt.Errorf("%w: %q not present in %s", ErrNotFound, old, norm)
	case n > 1:
		return fmt.Errorf("%w: %q occurs %d times in %s", ErrAmbiguousMatch, old, n, norm)
	}

	return s.backend.UpdateMemoryFile(ctx, norm, strings.Replace(m.Content, old, new, 1))
}

// Insert splices text in as a new line before lineIndex (zero-based).
// lineIndex equal to the current line count appends as the last line.
func (s *Store) Insert(ctx context.Context, path string, lineIndex int, text string) error {
	norm := Normalize(path)
	m, err := s.backend.GetMemoryFile(ctx, norm)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, norm)
	}
	if err != nil {
		return err
	}

	lines := strings.Split(m.Content, "\n")
	if lineIndex < 0 || lineIndex > len(lines) {
		return fmt.Errorf("%w: %d (file has %d lines)", ErrOutOfRange, lineIndex, len(lines))
	}

	spliced := make([]string, 0, len(lines)+1)
	spliced = append(spliced, lines[:lineIndex]...)
	spliced = append(spliced, text)
	spliced = append(spliced, lines[lineIndex:]...)

	return s.backend.UpdateMemoryFile(ctx, norm, strings.Join(spliced, "\n"))
}

// Delete removes the record at path.
func (s *Store) Delete(ctx context.Context, path string) error {
	err := s.backend.DeleteMemoryFile(ctx, Normalize(path))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, Normalize(path))
	}
	return err
}

// Rename repoints the record's key. Renaming onto an existing record is
// rejected rather than merged; the agent must delete the destination
// first if it really means to overwrite.
func (s *Store) Rename(ctx context.Context, oldPath, newPath string) error {
	err := s.backend.RenameMemoryFile(ctx, Normalize(oldPath), Normalize(newPath))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, Normalize(oldPath))
	case errors.Is(err, store.ErrAlreadyExists):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, Normalize(newPath))
	}
	return err
}
