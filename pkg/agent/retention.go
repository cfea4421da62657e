package agent

import (
	"github.com/steerhq/steer/pkg/types"
)

const screenshotPlaceholder = "[older screenshot removed]"

// applyRetention bounds the number of screenshots and thinking blocks the
// conversation carries forward. Screenshots dominate token cost and stale
// ones mislead more than they help; thinking blocks only matter for the
// model's most recent chain of reasoning.
//
// Both passes preserve message count and tool-use/tool-result pairing:
// images are replaced in place with a text marker, never removed along
// with their surrounding result block.
func applyRetention(messages []types.Message, keepScreenshots, keepThinking int) []types.Message {
	messages = retainScreenshots(messages, keepScreenshots)
	return retainThinking(messages, keepThinking)
}

// retainScreenshots keeps the most recent keep image blocks and replaces
// every older one with a text marker, including images nested inside tool
// results.
func retainScreenshots(messages []types.Message, keep int) []types.Message {
	if keep < 0 {
		keep = 0
	}
	total := 0
	for _, msg := range messages {
		total += countImages(msg.Content)
	}
	if total <= keep {
		return messages
	}

	// Walking in order, the first (total-keep) images encountered are the
	// old ones.
	replace := total - keep
	out := make([]types.Message, len(messages))
	for i, msg := range messages {
		if replace == 0 || countImages(msg.Content) == 0 {
			out[i] = msg
			continue
		}
		content, replaced := replaceImages(msg.Content, replace)
		replace -= replaced
		out[i] = types.Message{Role: msg.Role, Content: content}
	}
	return out
}

func countImages(blocks []types.ContentBlock) int {
	n := 0
	for _, block := range blocks {
		switch b := block.(type) {
		case types.ImageBlock:
			n++
		case types.ToolResultBlock:
			n += countImages(b.Content)
		}
	}
	return n
}

// replaceImages substitutes up to limit image blocks with text markers,
// in order, and returns the rebuilt content plus how many were replaced.
func replaceImages(blocks []types.ContentBlock, limit int) ([]types.ContentBlock, int) {
	out := make([]types.ContentBlock, len(blocks))
	replaced := 0
	for i, block := range blocks {
		if replaced >= limit {
			out[i] = block
			continue
		}
		switch b := block.(type) {
		case types.ImageBlock:
			out[i] = types.TextBlock{Text: screenshotPlaceholder}
			replaced++
		case types.ToolResultBlock:
			inner, n := replaceImages(b.Content, limit-replaced)
			replaced += n
			out[i] = types.ToolResultBlock{ToolUseID: b.ToolUseID, Content: inner, IsError: b.IsError}
		default:
			out[i] = block
		}
	}
	return out, replaced
}

// retainThinking keeps the most recent keep thinking blocks and drops the
// rest. Thinking blocks pair with nothing, so removal is safe.
func retainThinking(messages []types.Message, keep int) []types.Message {
	if keep < 0 {
		keep = 0
	}
	total := 0
	for _, msg := range messages {
		for _, block := range msg.Content {
			if block.BlockType() == types.BlockTypeThinking {
				total++
			}
		}
	}
	if total <= keep {
		return messages
	}

	drop := total - keep
	out := make([]types.Message, len(messages))
	for i, msg := range messages {
		if drop == 0 {
			out[i] = msg
			continue
		}
		content := make([]types.ContentBlock, 0, len(msg.Content))
		for _, block := range msg.Content {
			if drop > 0 && block.BlockType() == types.BlockTypeThinking {
				drop--
				continue
			}
			content = append(content, block)
		}
		out[i] = types.Message{Role: msg.Role, Content: content}
	}
	return out
}
