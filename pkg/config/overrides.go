// Package config resolves execution configuration for task runs.
//
// Configuration arrives in up to two sparse layers — a global file and
// per-task overrides embedded in the batch submission — and is flattened
// into one immutable ExecutionConfig per task run. Resolution is a pure
// function: later layers win field-by-field, fixed defaults fill the rest,
// and unrecognized keys are ignored for forward compatibility.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Overrides is a partially-specified configuration layer. Every field is
// optional; nil means "defer to the next layer down".
type Overrides struct {
	MaxIterations         *int     `yaml:"max_iterations" json:"max_iterations,omitempty"`
	IterationDelaySeconds *int     `yaml:"iteration_delay_seconds" json:"iteration_delay_seconds,omitempty"`
	ScreenshotRetention   *int     `yaml:"screenshot_retention" json:"screenshot_retention,omitempty"`
	ThinkingRetention     *int     `yaml:"thinking_retention" json:"thinking_retention,omitempty"`
	ContextTriggerTokens  *int     `yaml:"context_trigger_tokens" json:"context_trigger_tokens,omitempty"`
	ContextKeepToolUses   *int     `yaml:"context_keep_tool_uses" json:"context_keep_tool_uses,omitempty"`
	ContextClearMinTokens *int     `yaml:"context_clear_min_tokens" json:"context_clear_min_tokens,omitempty"`
	Model                 *string  `yaml:"model" json:"model,omitempty"`
	MaxResponseTokens     *int     `yaml:"max_response_tokens" json:"max_response_tokens,omitempty"`
	SystemPrompt          *string  `yaml:"system_prompt" json:"system_prompt,omitempty"`
	WebhookURL            *string  `yaml:"webhook_url" json:"webhook_url,omitempty"`
	WebhookSecret         *string  `yaml:"webhook_secret" json:"webhook_secret,omitempty"`
	WebhookAllowedHosts   []string `yaml:"webhook_allowed_hosts" json:"webhook_allowed_hosts,omitempty"`
	CloseSessionAfter     *bool    `yaml:"close_session_after" json:"close_session_after,omitempty"`
}

// LoadOverrides reads a YAML overrides file. A missing file is not an
// error: the batch simply runs on defaults.
func LoadOverrides(path string) (Overrides, error) {
	var o Overrides
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return o, nil
	}
	if err != nil {
		return o, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return o, nil
}
