package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhq/steer/pkg/types"
)

func imageMessage(data string) types.Message {
	return types.Message{
		Role: types.RoleUser,
		Content: []types.ContentBlock{
			types.ToolResultBlock{
				ToolUseID: "tu_" + data,
				Content: []types.ContentBlock{
					types.TextBlock{Text: "screenshot captured"},
				},
			},
			types.ImageBlock{MediaType: "image/png", Data: data},
		},
	}
}

func TestRetainScreenshotsKeepsMostRecent(t *testing.T) {
	messages := []types.Message{
		imageMessage("one"),
		imageMessage("two"),
		imageMessage("three"),
	}

	out := retainScreenshots(messages, 1)

	var live []string
	markers := 0
	for _, msg := range out {
		for _, block := range msg.Content {
			switch b := block.(type) {
			case types.ImageBlock:
				live = append(live, b.Data)
			case types.TextBlock:
				if b.Text == screenshotPlaceholder {
					markers++
				}
			}
		}
	}
	assert.Equal(t, []string{"three"}, live)
	assert.Equal(t, 2, markers)

	// Tool results survive untouched.
	_, results := types.CountBlockTypes(out)
	assert.Equal(t, 3, results)
}

func TestRetainScreenshotsNestedInResults(t *testing.T) {
	messages := []types.Message{
		{
			Role: types.RoleUser,
			Content: []types.ContentBlock{
				types.ToolResultBlock{
					ToolUseID: "tu_1",
					Content: []types.ContentBlock{
						types.ImageBlock{MediaType: "image/png", Data: "old"},
					},
				},
			},
		},
		imageMessage("new"),
	}

	out := retainScreenshots(messages, 1)

	result := out[0].Content[0].(types.ToolResultBlock)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(types.TextBlock)
	require.True(t, ok)
	assert.Equal(t, screenshotPlaceholder, text.Text)
	assert.Equal(t, "tu_1", result.ToolUseID)
}

func TestRetainScreenshotsUnderLimitUntouched(t *testing.T) {
	messages := []types.Message{imageMessage("only")}
	out := retainScreenshots(messages, 3)
	assert.Equal(t, messages, out)
}

func TestRetainThinkingDropsOldest(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleAssistant, Content: []types.ContentBlock{
			types.ThinkingBlock{Thinking: "first"},
			types.TextBlock{Text: "step one"},
		}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{
			types.ThinkingBlock{Thinking: "second"},
		}},
		{Role: types.RoleAssistant, Content: []types.ContentBlock{
			types.ThinkingBlock{Thinking: "third"},
		}},
	}

	out := retainThinking(messages, 1)

	var kept []string
	for _, msg := range out {
		for _, block := range msg.Content {
			if thinking, ok := block.(types.ThinkingBlock); ok {
				kept = append(kept, thinking.Thinking)
			}
		}
	}
	assert.Equal(t, []string{"third"}, kept)

	// Non-thinking content in the same turn survives.
	assert.Equal(t, "step one", out[0].Text())
}
