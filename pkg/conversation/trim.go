package conversation

import (
	"github.com/steerhq/steer/pkg/metrics"
	"github.com/steerhq/steer/pkg/tokenizer"
	"github.com/steerhq/steer/pkg/types"
)

// collapsedPlaceholder replaces the content of an old tool result. The
// result block itself survives with its tool_use_id so the pairing with
// the invocation stays intact.
const collapsedPlaceholder = "[old tool result content cleared to free context]"

// Trimmer bounds the conversation's token footprint by collapsing the
// content of old tool results once a trigger threshold is crossed.
//
// The token estimate it acts on comes from the provider's reported input
// usage on the previous turn; the tokenizer is only used to measure how
// much a collapse would actually free.
type Trimmer struct {
	// triggerTokens is the estimated-token threshold above which a trim
	// pass runs. Zero disables trimming entirely, deferring to the
	// provider's own context ceiling.
	triggerTokens int

	// keepToolUses is how many of the most recent tool results keep their
	// full content through a trim pass.
	keepToolUses int

	// minClearTokens is the minimum saving a pass must achieve. A pass
	// that would free less leaves the conversation untouched; the next
	// iteration re-checks.
	minClearTokens int

	tok *tokenizer.Tokenizer
}

// NewTrimmer creates a trimmer. tok may be nil, in which case savings are
// approximated from serialized length.
func NewTrimmer(triggerTokens, keepToolUses, minClearTokens int, tok *tokenizer.Tokenizer) *Trimmer {
	if keepToolUses < 0 {
		keepToolUses = 0
	}
	return &Trimmer{
		triggerTokens:  triggerTokens,
		keepToolUses:   keepToolUses,
		minClearTokens: minClearTokens,
		tok:            tok,
	}
}

// Trim returns the conversation to send, and whether a trim was applied.
// The input slice is never mutated; when a trim applies, affected messages
// are rebuilt with collapsed tool-result content and everything else is
// shared as-is.
//
// Tool-use blocks are never touched: every tool_use_id present before a
// pass is present after it, on both sides of the pairing.
func (t *Trimmer) Trim(messages []types.Message, estimatedTokens int) ([]types.Message, bool) {
	if t.triggerTokens == 0 || estimatedTokens < t.triggerTokens {
		return messages, false
	}

	candidates := t.collapsibleResults(messages)
	if len(candidates) <= t.keepToolUses {
		return messages, false
	}
	candidates = candidates[:len(candidates)-t.keepToolUses]

	saving := 0
	collapse := make(map[string]bool, len(candidates))
	for _, result := range candidates {
		saving += t.countBlocks(result.Content) - t.countText(collapsedPlaceholder)
		collapse[result.ToolUseID] = true
	}
	if saving < t.minClearTokens {
		return messages, false
	}

	trimmed := make([]types.Message, len(messages))
	for i, msg := range messages {
		trimmed[i] = msg
		for _, block := range msg.Content {
			if result, ok := block.(types.ToolResultBlock); ok && collapse[result.ToolUseID] {
				trimmed[i] = collapseResults(msg, collapse)
				break
			}
		}
	}

	metrics.ContextTrims.Inc()
	return trimmed, true
}

// collapsibleResults returns, in conversation order, every tool result
// whose content has not already been collapsed by a previous pass.
func (t *Trimmer) collapsibleResults(messages []types.Message) []types.ToolResultBlock {
	var results []types.ToolResultBlock
	for _, msg := range messages {
		for _, block := range msg.Content {
			result, ok := block.(types.ToolResultBlock)
			if !ok || isCollapsed(result) {
				continue
			}
			results = append(results, result)
		}
	}
	return results
}

// collapseResults rebuilds one message, replacing the content of every
// marked tool result with the placeholder.
func collapseResults(msg types.Message, collapse map[string]bool) types.Message {
	content := make([]types.ContentBlock, len(msg.Content))
	for i, block := range msg.Content {
		if result, ok := block.(types.ToolResultBlock); ok && collapse[result.ToolUseID] {
			content[i] = types.ToolResultBlock{
				ToolUseID: result.ToolUseID,
				IsError:   result.IsError,
				Content:   []types.ContentBlock{types.TextBlock{Text: collapsedPlaceholder}},
			}
			continue
		}
		content[i] = block
	}
	return types.Message{Role: msg.Role, Content: content}
}

func isCollapsed(result types.ToolResultBlock) bool {
	if len(result.Content) != 1 {
		return false
	}
	text, ok := result.Content[0].(types.TextBlock)
	return ok && text.Text == collapsedPlaceholder
}

func (t *Trimmer) countBlocks(blocks []types.ContentBlock) int {
	n := 0
	for _, b := range blocks {
		n += t.countBlock(b)
	}
	return n
}

func (t *Trimmer) countBlock(b types.ContentBlock) int {
	if t.tok != nil {
		return t.tok.CountBlockTokens(b)
	}
	raw, err := types.MarshalBlock(b)
	if err != nil {
		return 0
	}
	return len(raw) / 4
}

func (t *Trimmer) countText(s string) int {
	if t.tok != nil {
		return t.tok.CountTokens(s)
	}
	return len(s) / 4
}
