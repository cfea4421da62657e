package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steerhq/steer/pkg/types"
)

// UpsertTask inserts or updates a task record.
func (s *Store) UpsertTask(ctx context.Context, t *types.Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, batch_id, batch_index, prompt, status, current_iteration, result_message, stop_requested, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			current_iteration = excluded.current_iteration,
			result_message = excluded.result_message,
			stop_requested = excluded.stop_requested,
			updated_at = excluded.updated_at
	`,
		t.ID, t.BatchID, t.BatchIndex, t.Prompt, string(t.Status),
		t.CurrentIteration, t.ResultMessage, t.StopRequested, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, batch_id, batch_index, prompt, status, current_iteration, result_message, stop_requested, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListBatchTasks returns a batch's tasks in submission order.
func (s *Store) ListBatchTasks(ctx context.Context, batchID string) ([]*types.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, batch_index, prompt, status, current_iteration, result_message, stop_requested, created_at, updated_at
		FROM tasks WHERE batch_id = ? ORDER BY batch_index
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("store: list batch tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetTaskStatus transitions a task's status and result message.
func (s *Store) SetTaskStatus(ctx context.Context, id string, status types.TaskStatus, resultMessage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, result_message = ?, updated_at = ? WHERE id = ?`,
		string(status), resultMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: set task status: %w", err)
	}
	return nil
}

// SetTaskIteration persists the task's monotonic iteration counter. The
// counter survives stop/resume, so it is never reset here.
func (s *Store) SetTaskIteration(ctx context.Context, id string, iteration int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET current_iteration = ?, updated_at = ? WHERE id = ?`,
		iteration, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: set task iteration: %w", err)
	}
	return nil
}

// RequestTaskStop flips the task's persisted stop flag. Only the task's
// status is affected; any browser session the task was driving is left
// untouched for later resumption.
func (s *Store) RequestTaskStop(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET stop_requested = 1, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: request task stop: %w", err)
	}
	return nil
}

// TaskStopRequested reports the current value of the task's stop flag.
func (s *Store) TaskStopRequested(ctx context.Context, id string) (bool, error) {
	var stop bool
	err := s.db.QueryRowContext(ctx,
		`SELECT stop_requested FROM tasks WHERE id = ?`, id).Scan(&stop)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: task stop flag: %w", err)
	}
	return stop, nil
}

// ClearTaskStop resets the stop flag before a resumed run.
func (s *Store) ClearTaskStop(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET stop_requested = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: clear task stop: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*types.Task, error) {
	var t types.Task
	var status string
	err := row.Scan(&t.ID, &t.BatchID, &t.BatchIndex, &t.Prompt, &status,
		&t.CurrentIteration, &t.ResultMessage, &t.StopRequested, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan task: %w", err)
	}
	t.Status = types.TaskStatus(status)
	return &t, nil
}
