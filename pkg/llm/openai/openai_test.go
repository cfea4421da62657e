package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhq/steer/pkg/llm"
	"github.com/steerhq/steer/pkg/types"
)

const toolCallCompletion = `{
	"id": "chatcmpl-1",
	"choices": [{
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": "Clicking the submit button.",
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "browser", "arguments": "{\"action\":\"click\",\"x\":100,\"y\":200}"}
			}]
		}
	}],
	"usage": {
		"prompt_tokens": 1200,
		"completion_tokens": 40,
		"prompt_tokens_details": {"cached_tokens": 800}
	}
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewProvider("test-key", WithBaseURL(srv.URL), WithModel("computer-use-preview"))
	require.NoError(t, err)
	return p
}

func TestCompleteConvertsToolCalls(t *testing.T) {
	var gotBody map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallCompletion))
	})

	resp, err := p.Complete(context.Background(), &llm.Request{
		System:    "You drive a browser.",
		Messages:  []types.Message{types.NewUserMessage("click submit")},
		MaxTokens: 4096,
		Tools: []llm.ToolSpec{{
			Name:        "browser",
			Description: "Drive the browser",
			InputSchema: json.RawMessage(`{"type":"object"}`),
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "computer-use-preview", gotBody["model"])
	assert.Equal(t, float64(4096), gotBody["max_tokens"])

	tools := gotBody["tools"].([]interface{})
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "browser", fn["name"])

	// System prompt leads the message list.
	wireMessages := gotBody["messages"].([]interface{})
	require.GreaterOrEqual(t, len(wireMessages), 2)
	first := wireMessages[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])

	require.Len(t, resp.Blocks, 2)
	assert.Equal(t, types.BlockTypeText, resp.Blocks[0].BlockType())
	use, ok := resp.Blocks[1].(types.ToolUseBlock)
	require.True(t, ok)
	assert.Equal(t, "call_1", use.ID)
	assert.Equal(t, "browser", use.Name)
	assert.JSONEq(t, `{"action":"click","x":100,"y":200}`, string(use.Input))

	assert.Equal(t, llm.StopReasonToolUse, resp.StopReason)
	assert.Equal(t, 1200, resp.Usage.InputTokens)
	assert.Equal(t, 40, resp.Usage.OutputTokens)
	assert.Equal(t, 800, resp.Usage.CacheReadTokens)
}

func TestCompleteSendsToolResultsAsToolMessages(t *testing.T) {
	var gotBody map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = w.Write([]byte(`{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"Done."}}],"usage":{"prompt_tokens":10,"completion_tokens":2}}`))
	})

	messages := []types.Message{
		types.NewUserMessage("take a screenshot"),
		{
			Role: types.RoleAssistant,
			Content: []types.ContentBlock{
				types.ToolUseBlock{ID: "call_7", Name: "browser", Input: json.RawMessage(`{"action":"screenshot"}`)},
			},
		},
		{
			Role: types.RoleUser,
			Content: []types.ContentBlock{
				types.ToolResultBlock{
					ToolUseID: "call_7",
					Content:   []types.ContentBlock{types.TextBlock{Text: "screenshot captured"}},
				},
			},
		},
	}

	_, err := p.Complete(context.Background(), &llm.Request{Messages: messages})
	require.NoError(t, err)

	wireMessages := gotBody["messages"].([]interface{})
	require.Len(t, wireMessages, 3)

	assistant := wireMessages[1].(map[string]interface{})
	assert.Equal(t, "assistant", assistant["role"])
	calls := assistant["tool_calls"].([]interface{})
	require.Len(t, calls, 1)
	assert.Equal(t, "call_7", calls[0].(map[string]interface{})["id"])

	tool := wireMessages[2].(map[string]interface{})
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_7", tool["tool_call_id"])
}

func TestCompleteAPIErrorSurfaces(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	})

	_, err := p.Complete(context.Background(), &llm.Request{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewProviderRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewProvider("")
	assert.Error(t, err)
}
