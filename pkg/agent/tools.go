package agent

import (
	"encoding/json"

	"github.com/steerhq/steer/pkg/llm"
)

// Tool names offered to the model.
const (
	ToolBrowser      = "browser"
	ToolMemory       = "memory"
	ToolReportStatus = "report_status"
)

const browserSchema = `{
	"type": "object",
	"properties": {
		"action": {
			"type": "string",
			"enum": ["navigate", "click", "double_click", "type", "press", "scroll", "screenshot", "read_page", "wait"],
			"description": "The browser action to perform"
		},
		"url": {"type": "string", "description": "URL for navigate"},
		"x": {"type": "number", "description": "Viewport x coordinate for click actions"},
		"y": {"type": "number", "description": "Viewport y coordinate for click actions"},
		"text": {"type": "string", "description": "Text for type"},
		"key": {"type": "string", "description": "Key or chord for press, e.g. Enter or Control+a"},
		"delta_x": {"type": "number", "description": "Horizontal scroll distance in pixels"},
		"delta_y": {"type": "number", "description": "Vertical scroll distance in pixels"},
		"seconds": {"type": "number", "description": "Seconds to wait, max 10"}
	},
	"required": ["action"]
}`

const memorySchema = `{
	"type": "object",
	"properties": {
		"command": {
			"type": "string",
			"enum": ["view", "create", "str_replace", "insert", "delete", "rename"],
			"description": "The memory operation to perform"
		},
		"path": {"type": "string", "description": "Memory file path, e.g. memories/progress"},
		"file_text": {"type": "string", "description": "Full content for create"},
		"old_str": {"type": "string", "description": "Exact text to replace; must occur exactly once"},
		"new_str": {"type": "string", "description": "Replacement text"},
		"insert_line": {"type": "integer", "description": "Zero-based line index for insert"},
		"insert_text": {"type": "string", "description": "Line to insert"},
		"old_path": {"type": "string", "description": "Source path for rename"},
		"new_path": {"type": "string", "description": "Destination path for rename"}
	},
	"required": ["command"]
}`

const reportStatusSchema = `{
	"type": "object",
	"properties": {
		"status": {
			"type": "string",
			"enum": ["completed", "failed", "needs_help"],
			"description": "Final outcome of the task"
		},
		"message": {"type": "string", "description": "Human-readable summary of the outcome"},
		"reasoning": {"type": "string", "description": "Why this status was chosen"},
		"next_step": {"type": "string", "description": "For needs_help: what input is required to continue"},
		"evidence": {
			"type": "array",
			"items": {"type": "string"},
			"description": "Observations supporting the status, e.g. confirmation numbers"
		}
	},
	"required": ["status", "message"]
}`

// toolSpecs returns the tool set offered on every model call.
func toolSpecs() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        ToolBrowser,
			Description: "Control the browser: navigate, click and type by viewport coordinates, scroll, capture screenshots, or read the page as text.",
			InputSchema: json.RawMessage(browserSchema),
		},
		{
			Name:        ToolMemory,
			Description: "Persist notes across iterations and tasks. Files live under memories/ and survive restarts.",
			InputSchema: json.RawMessage(memorySchema),
		},
		{
			Name:        ToolReportStatus,
			Description: "Report the task's final status. This ends the task: call it exactly once, when the task is complete, impossible, or blocked on missing information.",
			InputSchema: json.RawMessage(reportStatusSchema),
		},
	}
}

// browserCommand is one invocation of the browser tool.
type browserCommand struct {
	Action string  `json:"action"`
	URL    string  `json:"url,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Text   string  `json:"text,omitempty"`
	Key    string  `json:"key,omitempty"`
	DeltaX float64 `json:"delta_x,omitempty"`
	DeltaY float64 `json:"delta_y,omitempty"`
	Seconds float64 `json:"seconds,omitempty"`
}
