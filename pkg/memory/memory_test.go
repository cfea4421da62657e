package memory

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhq/steer/pkg/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	backend, err := store.Open(filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewStore(backend)
}

func TestNormalizeStripsPrefix(t *testing.T) {
	assert.Equal(t, "task_1", Normalize("memories/task_1"))
	assert.Equal(t, "task_1", Normalize("/memories/task_1"))
	assert.Equal(t, "task_1", Normalize("task_1"))
}

func TestCreateTwiceFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "memories/task_1", "first"))
	err := s.Create(ctx, "task_1", "second")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Original content untouched.
	content, err := s.View(ctx, "memories/task_1")
	require.NoError(t, err)
	assert.Equal(t, "first", content)
}

func TestViewMissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.View(context.Background(), "memories/absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStrReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "t", "alpha beta alpha"))

	// Ambiguous: occurs twice, content unchanged.
	err := s.StrReplace(ctx, "t", "alpha", "gamma")
	assert.ErrorIs(t, err, ErrAmbiguousMatch)
	content, _ := s.View(ctx, "t")
	assert.Equal(t, "alpha beta alpha", content)

	// Missing needle.
	err = s.StrReplace(ctx, "t", "delta", "gamma")
	assert.ErrorIs(t, err, ErrNotFound)

	// Unique replacement.
	require.NoError(t, s.StrReplace(ctx, "t", "beta", "gamma"))
	content, _ = s.View(ctx, "t")
	assert.Equal(t, "alpha gamma alpha", content)
}

func TestInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "t", "line0\nline1"))

	assert.ErrorIs(t, s.Insert(ctx, "t", -1, "x"), ErrOutOfRange)
	assert.ErrorIs(t, s.Insert(ctx, "t", 3, "x"), ErrOutOfRange)

	// Index equal to line count appends as the last line.
	require.NoError(t, s.Insert(ctx, "t", 2, "line2"))
	content, _ := s.View(ctx, "t")
	assert.Equal(t, "line0\nline1\nline2", content)

	require.NoError(t, s.Insert(ctx, "t", 0, "header"))
	content, _ = s.View(ctx, "t")
	assert.Equal(t, "header\nline0\nline1\nline2", content)
}

func TestRenameRejectsExistingDestination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, "a", "A"))
	require.NoError(t, s.Create(ctx, "b", "B"))

	assert.ErrorIs(t, s.Rename(ctx, "a", "b"), ErrAlreadyExists)
	assert.ErrorIs(t, s.Rename(ctx, "missing", "c"), ErrNotFound)

	require.NoError(t, s.Rename(ctx, "a", "c"))
	content, err := s.View(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "A", content)
}

func TestExecuteDispatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	out, err := s.Execute(ctx, json.RawMessage(`{"command":"create","path":"memories/task_9","file_text":"note"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "task_9")

	out, err = s.Execute(ctx, json.RawMessage(`{"command":"view","path":"memories/task_9"}`))
	require.NoError(t, err)
	assert.Equal(t, "note", out)

	_, err = s.Execute(ctx, json.RawMessage(`{"command":"compact"}`))
	assert.Error(t, err)
}
