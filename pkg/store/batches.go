package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/steerhq/steer/pkg/types"
)

// CreateBatch inserts a new batch execution record.
func (s *Store) CreateBatch(ctx context.Context, b *types.BatchExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, session_id, task_count, completed_count, failed_count, status, browser_session_id, stop_requested, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.SessionID, b.TaskCount, b.CompletedCount, b.FailedCount,
		string(b.Status), b.BrowserSessionID, b.StopRequested, b.ErrorMessage,
		b.StartedAt, b.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create batch: %w", err)
	}
	return nil
}

// GetBatch retrieves a batch by ID.
func (s *Store) GetBatch(ctx context.Context, id string) (*types.BatchExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, task_count, completed_count, failed_count, status, browser_session_id, stop_requested, error_message, started_at, completed_at
		FROM batches WHERE id = ?
	`, id)

	var b types.BatchExecution
	var status string
	var completedAt sql.NullTime
	err := row.Scan(&b.ID, &b.SessionID, &b.TaskCount, &b.CompletedCount, &b.FailedCount,
		&status, &b.BrowserSessionID, &b.StopRequested, &b.ErrorMessage, &b.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get batch: %w", err)
	}
	b.Status = types.BatchStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		b.CompletedAt = &t
	}
	return &b, nil
}

// SetBatchStatus transitions a batch's status, recording the error message
// and completion time for terminal states.
func (s *Store) SetBatchStatus(ctx context.Context, id string, status types.BatchStatus, errMsg string) error {
	var completedAt interface{}
	if status.Terminal() {
		completedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		string(status), errMsg, completedAt, id)
	if err != nil {
		return fmt.Errorf("store: set batch status: %w", err)
	}
	return nil
}

// SetBatchBrowserSession records the shared browser handle so a concurrent
// stop request can find and release it.
func (s *Store) SetBatchBrowserSession(ctx context.Context, id, handle string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET browser_session_id = ? WHERE id = ?`, handle, id)
	if err != nil {
		return fmt.Errorf("store: set batch browser session: %w", err)
	}
	return nil
}

// RequestBatchStop flips the batch's persisted stop flag. The executor
// observes it between iterations and between tasks.
func (s *Store) RequestBatchStop(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE batches SET stop_requested = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: request batch stop: %w", err)
	}
	return nil
}

// BatchStopRequested reports the current value of the batch's stop flag.
func (s *Store) BatchStopRequested(ctx context.Context, id string) (bool, error) {
	var stop bool
	err := s.db.QueryRowContext(ctx,
		`SELECT stop_requested FROM batches WHERE id = ?`, id).Scan(&stop)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("store: batch stop flag: %w", err)
	}
	return stop, nil
}

// IncrementBatchCompleted atomically increments the batch's completed
// counter. The read and write happen in one transaction so the
// completed+failed <= task_count invariant holds even if the
// single-sequential-writer assumption is ever violated.
func (s *Store) IncrementBatchCompleted(ctx context.Context, id string) error {
	return s.incrementCounter(ctx, id, "completed_count")
}

// IncrementBatchFailed atomically increments the batch's failed counter.
func (s *Store) IncrementBatchFailed(ctx context.Context, id string) error {
	return s.incrementCounter(ctx, id, "failed_count")
}

func (s *Store) incrementCounter(ctx context.Context, id, column string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Re-read inside the transaction right before writing.
		var completed, failed, total int
		err := tx.QueryRowContext(ctx,
			`SELECT completed_count, failed_count, task_count FROM batches WHERE id = ?`, id).
			Scan(&completed, &failed, &total)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: read counters: %w", err)
		}
		if completed+failed >= total {
			return ErrCounterExhausted
		}
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE batches SET %s = %s + 1 WHERE id = ?`, column, column), id)
		if err != nil {
			return fmt.Errorf("store: increment %s: %w", column, err)
		}
		return nil
	})
}
