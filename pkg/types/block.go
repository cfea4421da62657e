// Package types defines the shared data model for steer: typed message
// content blocks, conversation messages, batch/task records, and the
// payloads exchanged with external systems.
//
// Content is modeled as a closed sum type rather than untyped maps so the
// conversation reconstructor and context trimmer can switch exhaustively
// over block kinds and the compiler enforces handling every one.
package types

import (
	"encoding/json"
	"fmt"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockTypeText       BlockType = "text"
	BlockTypeThinking   BlockType = "thinking"
	BlockTypeToolUse    BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
	BlockTypeImage      BlockType = "image"
)

// ContentBlock is one element of a message's structured content.
// Exactly five concrete types implement it.
type ContentBlock interface {
	BlockType() BlockType
}

// TextBlock is plain assistant or user text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) BlockType() BlockType { return BlockTypeText }

// ThinkingBlock carries the model's reasoning content. It is preserved
// verbatim across stop/resume so the model keeps its own chain of thought,
// subject to the thinking retention policy.
type ThinkingBlock struct {
	Thinking string `json:"thinking"`
}

func (ThinkingBlock) BlockType() BlockType { return BlockTypeThinking }

// ToolUseBlock is the model requesting a tool invocation. ID pairs it with
// the ToolResultBlock carrying the outcome; the provider rejects
// conversations where that pairing is broken.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseBlock) BlockType() BlockType { return BlockTypeToolUse }

// ToolResultBlock is the system reporting a tool invocation's outcome.
// Content may mix text and image blocks (screenshots).
type ToolResultBlock struct {
	ToolUseID string         `json:"tool_use_id"`
	Content   []ContentBlock `json:"content"`
	IsError   bool           `json:"is_error,omitempty"`
}

func (ToolResultBlock) BlockType() BlockType { return BlockTypeToolResult }

// ImageBlock holds base64-encoded image data, typically a screenshot.
type ImageBlock struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

func (ImageBlock) BlockType() BlockType { return BlockTypeImage }

// envelope is the wire form of a block: the type tag plus the union of all
// variant fields. Used only for JSON round-tripping.
type envelope struct {
	Type      BlockType       `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
}

// MarshalBlock serializes a single block with its type tag.
func MarshalBlock(b ContentBlock) ([]byte, error) {
	env := envelope{Type: b.BlockType()}
	switch v := b.(type) {
	case TextBlock:
		env.Text = v.Text
	case ThinkingBlock:
		env.Thinking = v.Thinking
	case ToolUseBlock:
		env.ID = v.ID
		env.Name = v.Name
		env.Input = v.Input
	case ToolResultBlock:
		env.ToolUseID = v.ToolUseID
		env.IsError = v.IsError
		inner, err := MarshalBlocks(v.Content)
		if err != nil {
			return nil, err
		}
		env.Content = inner
	case ImageBlock:
		env.MediaType = v.MediaType
		env.Data = v.Data
	default:
		return nil, fmt.Errorf("types: unknown block type %T", b)
	}
	return json.Marshal(env)
}

// UnmarshalBlock deserializes a single tagged block.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("types: decode block: %w", err)
	}
	switch env.Type {
	case BlockTypeText:
		return TextBlock{Text: env.Text}, nil
	case BlockTypeThinking:
		return ThinkingBlock{Thinking: env.Thinking}, nil
	case BlockTypeToolUse:
		return ToolUseBlock{ID: env.ID, Name: env.Name, Input: env.Input}, nil
	case BlockTypeToolResult:
		var inner []ContentBlock
		if len(env.Content) > 0 {
			var err error
			inner, err = UnmarshalBlocks(env.Content)
			if err != nil {
				return nil, err
			}
		}
		return ToolResultBlock{ToolUseID: env.ToolUseID, Content: inner, IsError: env.IsError}, nil
	case BlockTypeImage:
		return ImageBlock{MediaType: env.MediaType, Data: env.Data}, nil
	default:
		return nil, fmt.Errorf("types: unknown block type %q", env.Type)
	}
}

// MarshalBlocks serializes a block list as a JSON array.
func MarshalBlocks(blocks []ContentBlock) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		enc, err := MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		raw = append(raw, enc)
	}
	return json.Marshal(raw)
}

// UnmarshalBlocks deserializes a JSON array of tagged blocks.
func UnmarshalBlocks(data []byte) ([]ContentBlock, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("types: decode block list: %w", err)
	}
	blocks := make([]ContentBlock, 0, len(raw))
	for _, r := range raw {
		b, err := UnmarshalBlock(r)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}
