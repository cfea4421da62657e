package memory

import (
	"context"
	"encoding/json"
	"fmt"
)

// Command is one invocation of the memory tool as issued by the model.
// The command field selects the operation; the remaining fields are
// operation-specific.
type Command struct {
	Command    string `json:"command"`
	Path       string `json:"path,omitempty"`
	FileText   string `json:"file_text,omitempty"`
	OldStr     string `json:"old_str,omitempty"`
	NewStr     string `json:"new_str,omitempty"`
	InsertLine int    `json:"insert_line,omitempty"`
	InsertText string `json:"insert_text,omitempty"`
	OldPath    string `json:"old_path,omitempty"`
	NewPath    string `json:"new_path,omitempty"`
}

// Execute dispatches a memory command against the store and returns the
// text handed back to the model as the tool result. Typed violations come
// back as errors for the caller to render; they are expected agent-visible
// outcomes, not failures of the run.
func (s *Store) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return "", fmt.Errorf("memory: decode command: %w", err)
	}

	switch cmd.Command {
	case "view":
		content, err := s.View(ctx, cmd.Path)
		if err != nil {
			return "", err
		}
		return content, nil
	case "create":
		if err := s.Create(ctx, cmd.Path, cmd.FileText); err != nil {
			return "", err
		}
		return fmt.Sprintf("created %s", Normalize(cmd.Path)), nil
	case "str_replace":
		if err := s.StrReplace(ctx, cmd.Path, cmd.OldStr, cmd.NewStr); err != nil {
			return "", err
		}
		return fmt.Sprintf("replaced text in %s", Normalize(cmd.Path)), nil
	case "insert":
		if err := s.Insert(ctx, cmd.Path, cmd.InsertLine, cmd.InsertText); err != nil {
			return "", err
		}
		return fmt.Sprintf("inserted line into %s", Normalize(cmd.Path)), nil
	case "delete":
		if err := s.Delete(ctx, cmd.Path); err != nil {
			return "", err
		}
		return fmt.Sprintf("deleted %s", Normalize(cmd.Path)), nil
	case "rename":
		if err := s.Rename(ctx, cmd.OldPath, cmd.NewPath); err != nil {
			return "", err
		}
		return fmt.Sprintf("renamed %s to %s", Normalize(cmd.OldPath), Normalize(cmd.NewPath)), nil
	default:
		return "", fmt.Errorf("memory: unknown command %q", cmd.Command)
	}
}
