package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTripPreservesToolPairing(t *testing.T) {
	conv := []Message{
		NewUserMessage("book a flight"),
		NewAssistantMessage(
			ThinkingBlock{Thinking: "need to open the airline site"},
			ToolUseBlock{ID: "tu_1", Name: "navigate", Input: json.RawMessage(`{"url":"https://example.com"}`)},
		),
		{Role: RoleUser, Content: []ContentBlock{
			ToolResultBlock{ToolUseID: "tu_1", Content: []ContentBlock{
				TextBlock{Text: "navigated"},
				ImageBlock{MediaType: "image/png", Data: "aGk="},
			}},
		}},
	}

	data, err := MarshalMessages(conv)
	require.NoError(t, err)

	decoded, err := UnmarshalMessages(data)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	uses, results := CountBlockTypes(decoded)
	assert.Equal(t, 1, uses)
	assert.Equal(t, 1, results)

	// Nested tool result content survives, including the screenshot.
	result, ok := decoded[2].Content[0].(ToolResultBlock)
	require.True(t, ok)
	require.Len(t, result.Content, 2)
	assert.Equal(t, "tu_1", result.ToolUseID)
	img, ok := result.Content[1].(ImageBlock)
	require.True(t, ok)
	assert.Equal(t, "image/png", img.MediaType)
}

func TestMessageValueMarshalUsesEnvelope(t *testing.T) {
	// Conversations are passed around as message values; encoding one
	// through a plain interface must still produce tagged blocks.
	var v interface{} = NewAssistantMessage(
		ToolUseBlock{ID: "tu_1", Name: "browser", Input: json.RawMessage(`{}`)},
	)
	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"tool_use"`)

	decoded, err := UnmarshalMessages([]byte("[" + string(data) + "]"))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	uses, _ := CountBlockTypes(decoded)
	assert.Equal(t, 1, uses)
}

func TestMessageUnmarshalAcceptsBareString(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &m))
	assert.Equal(t, RoleUser, m.Role)
	assert.Equal(t, "hello", m.Text())
}

func TestUsageTotal(t *testing.T) {
	u := Usage{InputTokens: 1200, OutputTokens: 40, CacheReadTokens: 800}
	assert.Equal(t, 1240, u.Total())
}

func TestTaskStatusForAgentStatus(t *testing.T) {
	assert.Equal(t, TaskStatusCompleted, TaskStatusFor(AgentStatusCompleted))
	assert.Equal(t, TaskStatusFailed, TaskStatusFor(AgentStatusFailed))
	assert.Equal(t, TaskStatusPaused, TaskStatusFor(AgentStatusNeedsHelp))
	assert.False(t, TaskStatusPaused.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
}
