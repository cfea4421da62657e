// Package openai implements the model provider against OpenAI-compatible
// chat completion APIs.
//
// Requests are sent over raw HTTP rather than a generated client, which
// keeps compatibility with Azure OpenAI, local models, and other
// compatible gateways that deviate slightly from the reference API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	goopenai "github.com/openai/openai-go"

	"github.com/steerhq/steer/pkg/llm"
	"github.com/steerhq/steer/pkg/types"
)

// DefaultBaseURL is the default OpenAI API base URL.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the default model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a new OpenAI provider with the given API key.
//
// If apiKey is empty it is read from OPENAI_API_KEY. If no base URL is
// set via WithBaseURL, OPENAI_BASE_URL is consulted before falling back
// to the public API.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      "computer-use-preview",
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}
	return p, nil
}

// GetModel returns the default model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// completionResponse is the slice of the chat completion wire format the
// provider consumes. Decoded locally so gateway-specific extra fields
// never break parsing.
type completionResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request and converts the reply back
// into typed content blocks.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	reqBody := map[string]interface{}{
		"model":    model,
		"messages": convertMessages(req.System, req.Messages),
	}
	if req.MaxTokens > 0 {
		reqBody["max_tokens"] = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		reqBody["tools"] = convertTools(req.Tools)
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if completion.Error != nil {
		return nil, fmt.Errorf("API error (%s): %s", completion.Error.Type, completion.Error.Message)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("API response contained no choices")
	}

	choice := completion.Choices[0]
	var blocks []types.ContentBlock
	if choice.Message.Content != "" {
		blocks = append(blocks, types.TextBlock{Text: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		blocks = append(blocks, types.ToolUseBlock{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: json.RawMessage(call.Function.Arguments),
		})
	}

	return &llm.Response{
		Blocks:     blocks,
		StopReason: stopReasonFor(choice.FinishReason),
		Usage: types.Usage{
			InputTokens:     completion.Usage.PromptTokens,
			OutputTokens:    completion.Usage.CompletionTokens,
			CacheReadTokens: completion.Usage.PromptTokensDetails.CachedTokens,
		},
	}, nil
}

func stopReasonFor(finishReason string) llm.StopReason {
	switch finishReason {
	case "tool_calls":
		return llm.StopReasonToolUse
	case "length":
		return llm.StopReasonMaxTokens
	default:
		return llm.StopReasonEndTurn
	}
}

// convertMessages maps the typed conversation onto the chat completion
// message list. Simple text turns use the SDK param helpers; turns the
// helpers cannot express (assistant tool calls, user turns carrying
// screenshots) are built as raw message objects with the same wire shape.
func convertMessages(system string, messages []types.Message) []interface{} {
	out := make([]interface{}, 0, len(messages)+1)
	if system != "" {
		out = append(out, goopenai.SystemMessage(system))
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleAssistant:
			out = append(out, convertAssistantMessage(msg)...)
		default:
			out = append(out, convertUserMessage(msg)...)
		}
	}
	return out
}

// convertAssistantMessage emits one assistant message, with tool_calls
// attached when the turn contains tool invocations. Thinking blocks stay
// in the persisted history but are not re-sent on the wire.
func convertAssistantMessage(msg types.Message) []interface{} {
	text := ""
	var toolCalls []map[string]interface{}
	for _, block := range msg.Content {
		switch b := block.(type) {
		case types.TextBlock:
			text += b.Text
		case types.ToolUseBlock:
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   b.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      b.Name,
					"arguments": string(b.Input),
				},
			})
		}
	}

	if len(toolCalls) == 0 {
		return []interface{}{goopenai.AssistantMessage(text)}
	}

	raw := map[string]interface{}{
		"role":       "assistant",
		"tool_calls": toolCalls,
	}
	if text != "" {
		raw["content"] = text
	}
	return []interface{}{raw}
}

// convertUserMessage splits a user turn: tool results become role:"tool"
// messages (preserving pairing by tool_call_id, in content order before
// any free-form text), everything else becomes one user message.
func convertUserMessage(msg types.Message) []interface{} {
	var out []interface{}
	var parts []map[string]interface{}
	textOnly := true

	for _, block := range msg.Content {
		switch b := block.(type) {
		case types.ToolResultBlock:
			out = append(out, goopenai.ToolMessage(flattenResult(b), b.ToolUseID))
		case types.TextBlock:
			parts = append(parts, map[string]interface{}{"type": "text", "text": b.Text})
		case types.ImageBlock:
			textOnly = false
			parts = append(parts, map[string]interface{}{
				"type": "image_url",
				"image_url": map[string]interface{}{
					"url": fmt.Sprintf("data:%s;base64,%s", b.MediaType, b.Data),
				},
			})
		}
	}

	if len(parts) == 0 {
		return out
	}
	if textOnly && len(parts) == 1 {
		return append(out, goopenai.UserMessage(parts[0]["text"].(string)))
	}
	return append(out, map[string]interface{}{"role": "user", "content": parts})
}

// flattenResult renders a tool result's content for the role:"tool"
// message, which carries text only. Screenshots inside results are
// re-sent as separate user image turns by the agent loop, so here they
// reduce to a marker.
func flattenResult(result types.ToolResultBlock) string {
	text := ""
	for _, block := range result.Content {
		switch b := block.(type) {
		case types.TextBlock:
			text += b.Text
		case types.ImageBlock:
			if text != "" {
				text += "\n"
			}
			text += "[screenshot attached]"
		}
	}
	if result.IsError && text == "" {
		text = "tool execution failed"
	}
	return text
}

// convertTools maps tool specs onto function tool declarations.
func convertTools(tools []llm.ToolSpec) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  json.RawMessage(tool.InputSchema),
			},
		})
	}
	return out
}
