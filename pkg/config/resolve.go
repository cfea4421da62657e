package config

import "time"

// Documented defaults applied when neither the global layer nor the
// per-task layer specifies a field.
const (
	DefaultMaxIterations         = 35
	DefaultIterationDelay        = 1 * time.Second
	DefaultScreenshotRetention   = 3
	DefaultThinkingRetention     = 2
	DefaultContextTriggerTokens  = 150000
	DefaultContextKeepToolUses   = 3
	DefaultContextClearMinTokens = 2000
	DefaultModel                 = "computer-use-preview"
	DefaultMaxResponseTokens     = 4096
)

// ExecutionConfig is the fully-resolved configuration consumed by one task
// run. Immutable once constructed.
type ExecutionConfig struct {
	MaxIterations         int
	IterationDelay        time.Duration
	ScreenshotRetention   int
	ThinkingRetention     int
	ContextTriggerTokens  int // 0 disables trimming
	ContextKeepToolUses   int
	ContextClearMinTokens int
	Model                 string
	MaxResponseTokens     int
	SystemPrompt          string
	WebhookURL            string
	WebhookSecret         string
	WebhookAllowedHosts   []string
	CloseSessionAfter     bool

	// Tags carried only into outbound webhook payloads.
	BatchID   string
	TaskIndex int
}

// Resolve merges the global layer with a per-task layer into a concrete
// ExecutionConfig. Per-task values win, then global values, then defaults.
// Pure and total: it never fails, never touches the network or disk.
func Resolve(global, task Overrides) ExecutionConfig {
	cfg := ExecutionConfig{
		MaxIterations:         pickInt(task.MaxIterations, global.MaxIterations, DefaultMaxIterations),
		IterationDelay:        DefaultIterationDelay,
		ScreenshotRetention:   pickInt(task.ScreenshotRetention, global.ScreenshotRetention, DefaultScreenshotRetention),
		ThinkingRetention:     pickInt(task.ThinkingRetention, global.ThinkingRetention, DefaultThinkingRetention),
		ContextTriggerTokens:  pickInt(task.ContextTriggerTokens, global.ContextTriggerTokens, DefaultContextTriggerTokens),
		ContextKeepToolUses:   pickInt(task.ContextKeepToolUses, global.ContextKeepToolUses, DefaultContextKeepToolUses),
		ContextClearMinTokens: pickInt(task.ContextClearMinTokens, global.ContextClearMinTokens, DefaultContextClearMinTokens),
		Model:                 pickString(task.Model, global.Model, DefaultModel),
		MaxResponseTokens:     pickInt(task.MaxResponseTokens, global.MaxResponseTokens, DefaultMaxResponseTokens),
		SystemPrompt:          pickString(task.SystemPrompt, global.SystemPrompt, ""),
		WebhookURL:            pickString(task.WebhookURL, global.WebhookURL, ""),
		WebhookSecret:         pickString(task.WebhookSecret, global.WebhookSecret, ""),
		CloseSessionAfter:     pickBool(task.CloseSessionAfter, global.CloseSessionAfter, false),
	}

	if delay := pickIntPtr(task.IterationDelaySeconds, global.IterationDelaySeconds); delay != nil {
		cfg.IterationDelay = time.Duration(*delay) * time.Second
	}

	if len(task.WebhookAllowedHosts) > 0 {
		cfg.WebhookAllowedHosts = append([]string(nil), task.WebhookAllowedHosts...)
	} else if len(global.WebhookAllowedHosts) > 0 {
		cfg.WebhookAllowedHosts = append([]string(nil), global.WebhookAllowedHosts...)
	}

	return cfg
}

func pickIntPtr(task, global *int) *int {
	if task != nil {
		return task
	}
	return global
}

func pickInt(task, global *int, def int) int {
	if v := pickIntPtr(task, global); v != nil {
		return *v
	}
	return def
}

func pickString(task, global *string, def string) string {
	if task != nil {
		return *task
	}
	if global != nil {
		return *global
	}
	return def
}

func pickBool(task, global *bool, def bool) bool {
	if task != nil {
		return *task
	}
	if global != nil {
		return *global
	}
	return def
}
