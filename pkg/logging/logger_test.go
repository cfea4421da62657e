package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The log directory is resolved once per process, so everything that
// depends on HOME lives in this single test.
func TestLoggerWritesSharedSessionFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	first, err := NewLogger("agent")
	require.NoError(t, err)
	defer first.Close()

	second, err := NewLogger("webhook")
	require.NoError(t, err)
	defer second.Close()

	// One session for the whole process.
	require.Equal(t, first.SessionID(), second.SessionID())

	first.Infof("task %s started", "task_1")
	second.Errorf("delivery to %s failed", "https://example.com")

	path := filepath.Join(os.Getenv("HOME"), ".steer", "logs", first.SessionID()+".log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "[agent] [INFO] task task_1 started")
	assert.Contains(t, content, "[webhook] [ERROR] delivery to https://example.com failed")
}
