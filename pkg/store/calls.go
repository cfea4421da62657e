package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steerhq/steer/pkg/types"
)

// ModelCall is one persisted model request/response pair. Request holds
// the full outbound message list (tagged content blocks, JSON), Response
// holds the content blocks the model produced. Each outbound request is a
// superset of the previous one, so the latest row alone reconstructs the
// entire conversation.
type ModelCall struct {
	TaskID       string
	Seq          int
	Request      []byte
	Response     []byte
	InputTokens  int
	OutputTokens int
	CreatedAt    time.Time
}

// RecordModelCall appends a request/response pair for a task.
func (s *Store) RecordModelCall(ctx context.Context, call *ModelCall) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO model_calls (task_id, seq, request, response, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, call.TaskID, call.Seq, string(call.Request), string(call.Response),
		call.InputTokens, call.OutputTokens, call.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: record model call: %w", err)
	}
	return nil
}

// LatestModelCall returns the most recent request/response pair for a
// task. Candidates tie-break on highest timestamp, then highest sequence
// number. Returns ErrNotFound for a task with no recorded calls.
func (s *Store) LatestModelCall(ctx context.Context, taskID string) (*ModelCall, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, seq, request, response, input_tokens, output_tokens, created_at
		FROM model_calls WHERE task_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, taskID)

	var call ModelCall
	var request, response string
	err := row.Scan(&call.TaskID, &call.Seq, &request, &response,
		&call.InputTokens, &call.OutputTokens, &call.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest model call: %w", err)
	}
	call.Request = []byte(request)
	call.Response = []byte(response)
	return &call, nil
}

// AppendMessage persists one conversation message for dashboard-style
// consumers. The executor's source of truth for resumption is the
// model_calls table, not this log.
func (s *Store) AppendMessage(ctx context.Context, sessionID, taskID string, msg *types.Message) error {
	content, err := types.MarshalBlocks(msg.Content)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, task_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, taskID, string(msg.Role), string(content), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}
