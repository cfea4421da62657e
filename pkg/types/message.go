package types

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to or received from the
// model provider.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// NewUserMessage creates a user message with a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantMessage creates an assistant message from the given blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// Text returns the concatenation of all text blocks in the message.
func (m *Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			out += t.Text
		}
	}
	return out
}

// messageEnvelope is the wire form of a Message.
type messageEnvelope struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes the message with tagged content blocks. Value
// receiver so message values inside slices and interfaces use the
// envelope form too.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := MarshalBlocks(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageEnvelope{Role: m.Role, Content: content})
}

// UnmarshalJSON decodes a message, accepting either a block array or a bare
// string for content. The string form exists for operator-written batch
// files; persisted messages always use the block form.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("types: decode message: %w", err)
	}
	m.Role = env.Role
	if len(env.Content) == 0 {
		m.Content = nil
		return nil
	}
	if env.Content[0] == '"' {
		var text string
		if err := json.Unmarshal(env.Content, &text); err != nil {
			return fmt.Errorf("types: decode message text: %w", err)
		}
		m.Content = []ContentBlock{TextBlock{Text: text}}
		return nil
	}
	blocks, err := UnmarshalBlocks(env.Content)
	if err != nil {
		return err
	}
	m.Content = blocks
	return nil
}

// MarshalMessages encodes a conversation as a JSON array.
func MarshalMessages(messages []Message) ([]byte, error) {
	return json.Marshal(messages)
}

// UnmarshalMessages decodes a conversation from a JSON array.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("types: decode messages: %w", err)
	}
	return messages, nil
}

// CountBlockTypes tallies tool_use and tool_result blocks across a
// conversation, descending into tool_result content. The reconstructor and
// trimmer tests use it to assert pairing is never broken.
func CountBlockTypes(messages []Message) (toolUses, toolResults int) {
	for _, msg := range messages {
		for _, b := range msg.Content {
			switch b.(type) {
			case ToolUseBlock:
				toolUses++
			case ToolResultBlock:
				toolResults++
			}
		}
	}
	return toolUses, toolResults
}
