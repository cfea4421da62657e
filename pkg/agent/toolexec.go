package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steerhq/steer/pkg/types"
)

// readPageMaxLength bounds how much page text one read_page call can put
// into the conversation.
const readPageMaxLength = 20000

// executeToolUse runs one tool invocation and returns the content blocks
// for the reply turn: always a ToolResultBlock, plus an ImageBlock when
// the action produced a screenshot. Tool failures become error results
// the model can react to; they never abort the run.
func (a *Agent) executeToolUse(ctx context.Context, use types.ToolUseBlock) []types.ContentBlock {
	var text, image string
	var err error

	switch use.Name {
	case ToolBrowser:
		text, image, err = a.executeBrowser(use.Input)
	case ToolMemory:
		text, err = a.memory.Execute(ctx, use.Input)
	default:
		err = fmt.Errorf("unknown tool %q", use.Name)
	}

	if err != nil {
		a.log.Warnf("tool %s failed: %v", use.Name, err)
		return []types.ContentBlock{types.ToolResultBlock{
			ToolUseID: use.ID,
			IsError:   true,
			Content:   []types.ContentBlock{types.TextBlock{Text: err.Error()}},
		}}
	}

	blocks := []types.ContentBlock{types.ToolResultBlock{
		ToolUseID: use.ID,
		Content:   []types.ContentBlock{types.TextBlock{Text: text}},
	}}
	if image != "" {
		blocks = append(blocks, types.ImageBlock{MediaType: "image/png", Data: image})
	}
	return blocks
}

// executeBrowser dispatches one browser command against the driver.
// Returns the result text and, for screenshots, the base64 image.
func (a *Agent) executeBrowser(input json.RawMessage) (string, string, error) {
	var cmd browserCommand
	if err := json.Unmarshal(input, &cmd); err != nil {
		return "", "", fmt.Errorf("decode browser command: %w", err)
	}

	switch cmd.Action {
	case "navigate":
		finalURL, err := a.driver.Navigate(cmd.URL)
		if err != nil {
			return "", "", err
		}
		return fmt.Sprintf("navigated to %s", finalURL), "", nil
	case "click":
		if err := a.driver.Click(cmd.X, cmd.Y); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("clicked at (%.0f, %.0f)", cmd.X, cmd.Y), "", nil
	case "double_click":
		if err := a.driver.DoubleClick(cmd.X, cmd.Y); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("double clicked at (%.0f, %.0f)", cmd.X, cmd.Y), "", nil
	case "type":
		if err := a.driver.TypeText(cmd.Text); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("typed %d characters", len(cmd.Text)), "", nil
	case "press":
		if err := a.driver.Press(cmd.Key); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("pressed %s", cmd.Key), "", nil
	case "scroll":
		if err := a.driver.Scroll(cmd.DeltaX, cmd.DeltaY); err != nil {
			return "", "", err
		}
		return fmt.Sprintf("scrolled by (%.0f, %.0f)", cmd.DeltaX, cmd.DeltaY), "", nil
	case "screenshot":
		image, err := a.driver.Screenshot()
		if err != nil {
			return "", "", err
		}
		return "screenshot captured", image, nil
	case "read_page":
		summary, err := a.driver.ReadPage(readPageMaxLength)
		if err != nil {
			return "", "", err
		}
		return summary.String(), "", nil
	case "wait":
		a.driver.Wait(time.Duration(cmd.Seconds * float64(time.Second)))
		return fmt.Sprintf("waited %.1f seconds", cmd.Seconds), "", nil
	default:
		return "", "", fmt.Errorf("unknown browser action %q", cmd.Action)
	}
}
