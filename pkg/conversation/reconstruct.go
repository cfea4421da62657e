// Package conversation rebuilds and bounds the message history handed to
// the model provider.
//
// The reconstructor restores a stopped task's full structured history from
// the last persisted model call, so resuming never re-issues a tool
// invocation the agent already performed. The trimmer keeps that history
// under a token budget by collapsing old tool results, without ever
// breaking a tool-use/tool-result pair.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/steerhq/steer/pkg/store"
	"github.com/steerhq/steer/pkg/types"
)

// CallLog is the slice of the store the reconstructor reads from.
type CallLog interface {
	LatestModelCall(ctx context.Context, taskID string) (*store.ModelCall, error)
}

// Reconstructor rebuilds the conversation a resumed task hands to its
// next model call.
type Reconstructor struct {
	calls CallLog
}

// NewReconstructor creates a reconstructor over the given call log.
func NewReconstructor(calls CallLog) *Reconstructor {
	return &Reconstructor{calls: calls}
}

// Rebuild produces the exact conversation the model would have seen had
// the task never stopped, plus the new user turn.
//
// For a task with no recorded calls the result is just the new user
// message. Otherwise the persisted request already carries the entire
// prior history (each outbound request is a superset of the previous
// one), so the result is that history, plus one assistant turn built
// verbatim from the persisted response blocks, plus the new user turn:
// N persisted messages always come back as N+2.
func (r *Reconstructor) Rebuild(ctx context.Context, taskID, newUserMessage string) ([]types.Message, error) {
	call, err := r.calls.LatestModelCall(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return []types.Message{types.NewUserMessage(newUserMessage)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load last call for task %s: %w", taskID, err)
	}

	history, err := types.UnmarshalMessages(call.Request)
	if err != nil {
		return nil, fmt.Errorf("conversation: decode persisted request for task %s: %w", taskID, err)
	}
	responseBlocks, err := types.UnmarshalBlocks(call.Response)
	if err != nil {
		return nil, fmt.Errorf("conversation: decode persisted response for task %s: %w", taskID, err)
	}

	// The response blocks are the turn the model actually produced and the
	// agent actually acted on. Thinking, text, and tool_use blocks are all
	// kept verbatim; dropping a tool_use here would orphan its result on
	// the next exchange.
	messages := make([]types.Message, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, types.Message{
		Role:    types.RoleAssistant,
		Content: responseBlocks,
	})
	messages = append(messages, types.NewUserMessage(newUserMessage))
	return messages, nil
}
