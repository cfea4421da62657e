// Package llm defines the model provider abstraction the agent loop
// calls. Providers translate the typed conversation into their wire
// protocol and hand back typed content blocks plus usage counts; they
// stay free of agent-level orchestration so they can be tested and
// reused independently.
package llm

import (
	"context"
	"encoding/json"

	"github.com/steerhq/steer/pkg/types"
)

// ToolSpec describes one tool offered to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is one model call.
type Request struct {
	// Model overrides the provider's configured model when non-empty.
	Model string

	// System is the system prompt, kept out of Messages so providers can
	// place it wherever their protocol wants it.
	System string

	Messages  []types.Message
	Tools     []ToolSpec
	MaxTokens int
}

// StopReason is why the model stopped producing output.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Response is the model's reply: ordered content blocks plus the usage
// counts that feed the context trimmer.
type Response struct {
	Blocks     []types.ContentBlock
	StopReason StopReason
	Usage      types.Usage
}

// Provider is implemented by model backends.
type Provider interface {
	// Complete sends one request and blocks until the full response is
	// available. Implementations must honor ctx cancellation.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// GetModel returns the provider's configured default model.
	GetModel() string
}

// ToolUses extracts the tool invocation blocks from a response, in order.
func (r *Response) ToolUses() []types.ToolUseBlock {
	var uses []types.ToolUseBlock
	for _, b := range r.Blocks {
		if use, ok := b.(types.ToolUseBlock); ok {
			uses = append(uses, use)
		}
	}
	return uses
}

// Text concatenates the response's text blocks.
func (r *Response) Text() string {
	out := ""
	for _, b := range r.Blocks {
		if text, ok := b.(types.TextBlock); ok {
			out += text.Text
		}
	}
	return out
}
