package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestResolveDefaults(t *testing.T) {
	cfg := Resolve(Overrides{}, Overrides{})

	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, DefaultIterationDelay, cfg.IterationDelay)
	assert.Equal(t, DefaultScreenshotRetention, cfg.ScreenshotRetention)
	assert.Equal(t, DefaultThinkingRetention, cfg.ThinkingRetention)
	assert.Equal(t, DefaultContextTriggerTokens, cfg.ContextTriggerTokens)
	assert.Equal(t, DefaultContextKeepToolUses, cfg.ContextKeepToolUses)
	assert.Equal(t, DefaultContextClearMinTokens, cfg.ContextClearMinTokens)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultMaxResponseTokens, cfg.MaxResponseTokens)
	assert.Empty(t, cfg.WebhookURL)
	assert.False(t, cfg.CloseSessionAfter)
}

func TestResolveTaskWinsOverGlobal(t *testing.T) {
	global := Overrides{
		MaxIterations:         intPtr(20),
		Model:                 strPtr("global-model"),
		WebhookURL:            strPtr("https://global.example.com/hook"),
		IterationDelaySeconds: intPtr(5),
	}
	task := Overrides{
		MaxIterations: intPtr(50),
		Model:         strPtr("task-model"),
	}

	cfg := Resolve(global, task)

	// Task layer wins where present.
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, "task-model", cfg.Model)
	// Global layer fills fields the task omits.
	assert.Equal(t, "https://global.example.com/hook", cfg.WebhookURL)
	assert.Equal(t, 5*time.Second, cfg.IterationDelay)
	// Defaults fill everything else.
	assert.Equal(t, DefaultScreenshotRetention, cfg.ScreenshotRetention)
}

func TestResolveAllowedHostsCopied(t *testing.T) {
	global := Overrides{WebhookAllowedHosts: []string{"*.example.com"}}
	cfg := Resolve(global, Overrides{})

	require.Len(t, cfg.WebhookAllowedHosts, 1)
	cfg.WebhookAllowedHosts[0] = "mutated"
	assert.Equal(t, "*.example.com", global.WebhookAllowedHosts[0])
}

func TestResolveBoolOverride(t *testing.T) {
	cfg := Resolve(Overrides{CloseSessionAfter: boolPtr(true)}, Overrides{})
	assert.True(t, cfg.CloseSessionAfter)

	cfg = Resolve(Overrides{CloseSessionAfter: boolPtr(true)}, Overrides{CloseSessionAfter: boolPtr(false)})
	assert.False(t, cfg.CloseSessionAfter)
}

func TestLoadOverridesIgnoresUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steer.yaml")
	data := []byte("max_iterations: 12\nsome_future_field: true\nmodel: m1\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	o, err := LoadOverrides(path)
	require.NoError(t, err)
	require.NotNil(t, o.MaxIterations)
	assert.Equal(t, 12, *o.MaxIterations)
	require.NotNil(t, o.Model)
	assert.Equal(t, "m1", *o.Model)
}

func TestLoadOverridesMissingFile(t *testing.T) {
	o, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, o.MaxIterations)
}
