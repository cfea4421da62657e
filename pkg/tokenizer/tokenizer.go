// Package tokenizer provides client-side token counting for context
// budget decisions. Counts are estimates: the provider's own tokenizer
// is authoritative, but cl100k_base tracks it closely enough to decide
// when the conversation needs trimming.
package tokenizer

import (
	"encoding/base64"
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/steerhq/steer/pkg/types"
)

const encodingName = "cl100k_base"

// Overhead added per message for role framing and delimiters.
const perMessageOverhead = 4

// Tokenizer counts tokens using the cl100k_base encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New creates a tokenizer. Initialization downloads or loads the BPE
// ranks, so callers should construct once and reuse.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s encoding: %w", encodingName, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the token count for a raw string.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountBlockTokens estimates the token cost of one content block.
// Images are counted from their decoded byte length rather than their
// base64 text, approximating how vision models bill screenshot input.
func (t *Tokenizer) CountBlockTokens(block types.ContentBlock) int {
	switch b := block.(type) {
	case types.TextBlock:
		return t.CountTokens(b.Text)
	case types.ThinkingBlock:
		return t.CountTokens(b.Thinking)
	case types.ToolUseBlock:
		return t.CountTokens(b.Name) + t.CountTokens(string(b.Input))
	case types.ToolResultBlock:
		n := 0
		for _, inner := range b.Content {
			n += t.CountBlockTokens(inner)
		}
		return n
	case types.ImageBlock:
		decoded := base64.StdEncoding.DecodedLen(len(b.Data))
		// Roughly 750 tokens per decoded 100KB of screenshot.
		return decoded * 3 / 400
	default:
		return 0
	}
}

// CountMessageTokens estimates the token cost of one message including
// its role framing overhead.
func (t *Tokenizer) CountMessageTokens(msg types.Message) int {
	n := perMessageOverhead
	for _, block := range msg.Content {
		n += t.CountBlockTokens(block)
	}
	return n
}

// CountMessagesTokens estimates the total token cost of a conversation.
func (t *Tokenizer) CountMessagesTokens(messages []types.Message) int {
	n := 0
	for _, msg := range messages {
		n += t.CountMessageTokens(msg)
	}
	return n
}
