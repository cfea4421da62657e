// Package batch orchestrates batch executions: one browser session per
// batch, tasks run strictly in submission order against it, and every
// outcome is persisted before anything external hears about it.
package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/steerhq/steer/pkg/agent"
	"github.com/steerhq/steer/pkg/browser"
	"github.com/steerhq/steer/pkg/config"
	"github.com/steerhq/steer/pkg/llm"
	"github.com/steerhq/steer/pkg/logging"
	"github.com/steerhq/steer/pkg/memory"
	"github.com/steerhq/steer/pkg/metrics"
	"github.com/steerhq/steer/pkg/store"
	"github.com/steerhq/steer/pkg/types"
	"github.com/steerhq/steer/pkg/webhook"
)

// ErrTaskTerminal is returned when resuming a task that already reached
// completed or failed.
var ErrTaskTerminal = errors.New("batch: task is in a terminal state")

// TaskSpec is one task in a submission: a natural-language prompt plus
// optional per-task configuration overrides.
type TaskSpec struct {
	Prompt    string           `yaml:"prompt" json:"prompt"`
	Overrides config.Overrides `yaml:"overrides" json:"overrides"`
}

// Submission is an ordered list of tasks to run against one shared
// browser session.
type Submission struct {
	SessionID string     `yaml:"session_id" json:"session_id"`
	Tasks     []TaskSpec `yaml:"tasks" json:"tasks"`
}

// TaskRunner runs the iteration loop for one task. *agent.Agent is the
// production implementation.
type TaskRunner interface {
	Run(ctx context.Context, task *types.Task, userMessage string) (*types.StatusReport, error)
}

// RunnerFactory builds the runner for one task run with its resolved
// configuration and the batch's browser session.
type RunnerFactory func(driver agent.BrowserDriver, cfg config.ExecutionConfig, sessionID string) TaskRunner

// Executor drives batch executions end to end.
type Executor struct {
	store    *store.Store
	provider llm.Provider
	browser  browser.Provider
	global   config.Overrides
	log      *logging.Logger

	// dispatcher carries the global-layer host allowlist; notify builds a
	// one-off dispatcher only when a task overrides the allowlist.
	dispatcher   *webhook.Dispatcher
	allowedHosts []string

	newRunner RunnerFactory
}

// Option configures an Executor.
type Option func(*Executor)

// WithRunnerFactory overrides how task runners are built, for tests.
func WithRunnerFactory(factory RunnerFactory) Option {
	return func(e *Executor) {
		e.newRunner = factory
	}
}

// NewExecutor creates a batch executor. global is the deployment-level
// configuration layer; per-task overrides in each submission win over it
// field by field.
func NewExecutor(st *store.Store, provider llm.Provider, browserProvider browser.Provider, global config.Overrides, opts ...Option) *Executor {
	logger, err := logging.NewLogger("batch")
	if err != nil {
		logger.Warnf("file logging unavailable: %v", err)
	}

	allowedHosts := config.Resolve(global, config.Overrides{}).WebhookAllowedHosts
	e := &Executor{
		store:        st,
		provider:     provider,
		browser:      browserProvider,
		global:       global,
		log:          logger,
		dispatcher:   webhook.NewDispatcher(webhook.WithAllowedHosts(allowedHosts)),
		allowedHosts: allowedHosts,
	}
	e.newRunner = func(driver agent.BrowserDriver, cfg config.ExecutionConfig, sessionID string) TaskRunner {
		return agent.New(e.provider, driver, memory.NewStore(e.store), e.store, cfg,
			agent.WithSessionID(sessionID))
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs a submission to completion and returns the final batch
// record. Task failures are isolated: a failing task is persisted as
// failed and the batch moves on. Only setup failures (browser
// acquisition, record creation) fail the batch itself.
func (e *Executor) Execute(ctx context.Context, sub *Submission) (*types.BatchExecution, error) {
	batch, tasks, err := e.createRecords(ctx, sub)
	if err != nil {
		return nil, err
	}
	e.log.Infof("batch %s: starting %d tasks", batch.ID, len(tasks))

	handle, err := e.browser.Create(ctx)
	if err != nil {
		e.failBatch(ctx, batch, tasks, fmt.Errorf("acquire browser session: %w", err))
		return e.store.GetBatch(ctx, batch.ID)
	}
	// Persist the handle immediately: a concurrent stop must be able to
	// find and release it.
	if err := e.store.SetBatchBrowserSession(ctx, batch.ID, handle); err != nil {
		e.destroySession(ctx, handle)
		e.failBatch(ctx, batch, tasks, fmt.Errorf("persist browser handle: %w", err))
		return e.store.GetBatch(ctx, batch.ID)
	}

	stopped := false
	sessionLive := true
	for i, task := range tasks {
		if !stopped {
			stopped = e.batchStopRequested(ctx, batch.ID)
		}
		if stopped {
			// Queued tasks transition directly to stopped, never running.
			e.setTaskStatus(ctx, task.ID, types.TaskStatusStopped, "batch stopped before task started")
			continue
		}

		cfg := config.Resolve(e.global, sub.Tasks[i].Overrides)
		cfg.BatchID = batch.ID
		cfg.TaskIndex = task.BatchIndex

		if !sessionLive {
			handle, err = e.browser.Create(ctx)
			if err != nil {
				e.failTask(ctx, batch.ID, task, fmt.Errorf("reacquire browser session: %w", err), cfg)
				continue
			}
			sessionLive = true
			_ = e.store.SetBatchBrowserSession(ctx, batch.ID, handle)
		}

		if err := e.browser.Resume(ctx, handle); err != nil {
			e.log.Warnf("batch %s: resume session: %v", batch.ID, err)
		}

		outcome := e.runTask(ctx, batch, task, handle, cfg)
		if outcome == types.TaskStatusStopped && e.batchStopRequested(ctx, batch.ID) {
			stopped = true
		}

		if cfg.CloseSessionAfter && sessionLive {
			e.destroySession(ctx, handle)
			sessionLive = false
			_ = e.store.SetBatchBrowserSession(ctx, batch.ID, "")
		} else if sessionLive && i < len(tasks)-1 {
			// Idle the session between tasks; page state is kept.
			if err := e.browser.Pause(ctx, handle); err != nil {
				e.log.Warnf("batch %s: pause session: %v", batch.ID, err)
			}
		}
	}

	// A batch-level stop releases the shared session. Otherwise it stays
	// live for paused-task resumption or later reconnection; only the
	// per-task teardown flag closes it early.
	if stopped && sessionLive {
		e.destroySession(ctx, handle)
		_ = e.store.SetBatchBrowserSession(ctx, batch.ID, "")
	}

	final := types.BatchStatusCompleted
	if stopped {
		final = types.BatchStatusStopped
	}
	if err := e.store.SetBatchStatus(ctx, batch.ID, final, ""); err != nil {
		e.log.Errorf("batch %s: persist final status: %v", batch.ID, err)
	}
	e.log.Infof("batch %s: finished with status %s", batch.ID, final)
	return e.store.GetBatch(ctx, batch.ID)
}

// runTask executes one task and persists its outcome. Returns the
// persisted task status.
func (e *Executor) runTask(ctx context.Context, batch *types.BatchExecution, task *types.Task, handle string, cfg config.ExecutionConfig) types.TaskStatus {
	session, err := e.browser.Session(handle)
	if err != nil {
		e.failTask(ctx, batch.ID, task, fmt.Errorf("resolve browser session: %w", err), cfg)
		return types.TaskStatusFailed
	}

	e.setTaskStatus(ctx, task.ID, types.TaskStatusRunning, "")
	runner := e.newRunner(session, cfg, batch.SessionID)

	start := time.Now()
	report, err := runner.Run(ctx, task, task.Prompt)
	duration := time.Since(start)

	switch {
	case errors.Is(err, agent.ErrStopped):
		e.setTaskStatus(ctx, task.ID, types.TaskStatusStopped, "stopped by request")
		metrics.RecordTaskOutcome(string(types.TaskStatusStopped), duration)
		return types.TaskStatusStopped
	case err != nil:
		e.failTask(ctx, batch.ID, task, err, cfg)
		metrics.RecordTaskOutcome(string(types.TaskStatusFailed), duration)
		return types.TaskStatusFailed
	default:
		status := e.finishTask(ctx, batch.ID, task, report, cfg)
		metrics.RecordTaskOutcome(string(status), duration)
		return status
	}
}

// finishTask persists an agent-reported outcome, bumps the batch
// counters, and notifies the webhook after the status is durable.
func (e *Executor) finishTask(ctx context.Context, batchID string, task *types.Task, report *types.StatusReport, cfg config.ExecutionConfig) types.TaskStatus {
	status := types.TaskStatusFor(report.Status)
	e.setTaskStatus(ctx, task.ID, status, report.Message)

	switch status {
	case types.TaskStatusCompleted:
		e.incrementCounter(ctx, batchID, e.store.IncrementBatchCompleted)
	case types.TaskStatusFailed:
		e.incrementCounter(ctx, batchID, e.store.IncrementBatchFailed)
	}

	e.notify(ctx, task, report, cfg)
	return status
}

// failTask persists a task execution failure. The error text becomes the
// task's result message, the only channel through which failure detail
// reaches the end user.
func (e *Executor) failTask(ctx context.Context, batchID string, task *types.Task, taskErr error, cfg config.ExecutionConfig) {
	e.log.Errorf("task %s failed: %v", task.ID, taskErr)
	e.setTaskStatus(ctx, task.ID, types.TaskStatusFailed, taskErr.Error())
	e.incrementCounter(ctx, batchID, e.store.IncrementBatchFailed)
	e.notify(ctx, task, &types.StatusReport{
		Status:  types.AgentStatusFailed,
		Message: taskErr.Error(),
	}, cfg)
}

// notify delivers the task's status webhook, after the terminal status
// has been persisted. Best-effort: delivery problems are the
// dispatcher's to log.
func (e *Executor) notify(ctx context.Context, task *types.Task, report *types.StatusReport, cfg config.ExecutionConfig) {
	if cfg.WebhookURL == "" {
		return
	}
	dispatcher := e.dispatcher
	if !slices.Equal(cfg.WebhookAllowedHosts, e.allowedHosts) {
		dispatcher = webhook.NewDispatcher(webhook.WithAllowedHosts(cfg.WebhookAllowedHosts))
	}
	dispatcher.Deliver(ctx, cfg.WebhookURL, webhook.Payload(cfg.BatchID, task.ID, task.BatchIndex, report), cfg.WebhookSecret)
}

// Stop requests a cooperative stop of a running batch. The executor
// observes the flag between iterations and between tasks; a task inside
// one model/browser round-trip finishes that round-trip first.
func (e *Executor) Stop(ctx context.Context, batchID string) error {
	if err := e.store.RequestBatchStop(ctx, batchID); err != nil {
		return err
	}
	e.log.Infof("batch %s: stop requested", batchID)
	return nil
}

// StopTask requests a cooperative stop of one task. Only the task's
// status is affected; the batch's browser session is left untouched
// because a later resumption may need it.
func (e *Executor) StopTask(ctx context.Context, taskID string) error {
	if err := e.store.RequestTaskStop(ctx, taskID); err != nil {
		return err
	}
	e.log.Infof("task %s: stop requested", taskID)
	return nil
}

// ResumeTask re-enters the iteration loop for a stopped or paused task
// with a new user message. The conversation is rebuilt from the last
// persisted model call, so the agent keeps full memory of prior actions
// without re-issuing any tool invocation.
func (e *Executor) ResumeTask(ctx context.Context, taskID, message string) (*types.StatusReport, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return nil, ErrTaskTerminal
	}
	if err := e.store.ClearTaskStop(ctx, taskID); err != nil {
		return nil, err
	}

	cfg := config.Resolve(e.global, config.Overrides{})
	cfg.BatchID = task.BatchID
	cfg.TaskIndex = task.BatchIndex

	sessionID := ""
	handle := ""
	if task.BatchID != "" {
		batch, err := e.store.GetBatch(ctx, task.BatchID)
		if err != nil {
			return nil, err
		}
		sessionID = batch.SessionID
		handle = batch.BrowserSessionID
	}

	session, err := e.resumeSession(ctx, task.BatchID, handle)
	if err != nil {
		return nil, err
	}

	e.setTaskStatus(ctx, task.ID, types.TaskStatusRunning, "")
	runner := e.newRunner(session, cfg, sessionID)

	start := time.Now()
	report, err := runner.Run(ctx, task, message)
	duration := time.Since(start)

	switch {
	case errors.Is(err, agent.ErrStopped):
		e.setTaskStatus(ctx, task.ID, types.TaskStatusStopped, "stopped by request")
		metrics.RecordTaskOutcome(string(types.TaskStatusStopped), duration)
		return nil, agent.ErrStopped
	case err != nil:
		e.failTask(ctx, task.BatchID, task, err, cfg)
		metrics.RecordTaskOutcome(string(types.TaskStatusFailed), duration)
		return nil, err
	default:
		status := e.finishTask(ctx, task.BatchID, task, report, cfg)
		metrics.RecordTaskOutcome(string(status), duration)
		return report, nil
	}
}

// resumeSession reattaches to the batch's recorded browser session, or
// acquires a fresh one when the recorded handle no longer resolves
// (process restart, earlier teardown).
func (e *Executor) resumeSession(ctx context.Context, batchID, handle string) (*browser.Session, error) {
	if handle != "" {
		session, err := e.browser.Session(handle)
		if err == nil {
			if err := e.browser.Resume(ctx, handle); err != nil {
				e.log.Warnf("resume session %s: %v", handle, err)
			}
			return session, nil
		}
		if !errors.Is(err, browser.ErrSessionNotFound) {
			return nil, err
		}
	}

	fresh, err := e.browser.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("batch: acquire browser session for resume: %w", err)
	}
	if batchID != "" {
		_ = e.store.SetBatchBrowserSession(ctx, batchID, fresh)
	}
	return e.browser.Session(fresh)
}

// createRecords persists the batch and its tasks before anything runs,
// so stop requests and dashboards can see the work immediately.
func (e *Executor) createRecords(ctx context.Context, sub *Submission) (*types.BatchExecution, []*types.Task, error) {
	if len(sub.Tasks) == 0 {
		return nil, nil, fmt.Errorf("batch: submission has no tasks")
	}

	now := time.Now().UTC()
	batch := &types.BatchExecution{
		ID:        uuid.New().String(),
		SessionID: sub.SessionID,
		TaskCount: len(sub.Tasks),
		Status:    types.BatchStatusRunning,
		StartedAt: now,
	}
	if batch.SessionID == "" {
		batch.SessionID = uuid.New().String()
	}
	if err := e.store.CreateBatch(ctx, batch); err != nil {
		return nil, nil, err
	}

	tasks := make([]*types.Task, 0, len(sub.Tasks))
	for i, spec := range sub.Tasks {
		task := &types.Task{
			ID:         uuid.New().String(),
			BatchID:    batch.ID,
			BatchIndex: i,
			Prompt:     spec.Prompt,
			Status:     types.TaskStatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := e.store.UpsertTask(ctx, task); err != nil {
			return nil, nil, err
		}
		tasks = append(tasks, task)
	}
	return batch, tasks, nil
}

// failBatch marks the batch failed after a setup error and transitions
// its never-started tasks to stopped.
func (e *Executor) failBatch(ctx context.Context, batch *types.BatchExecution, tasks []*types.Task, batchErr error) {
	e.log.Errorf("batch %s failed: %v", batch.ID, batchErr)
	for _, task := range tasks {
		if !task.Status.Terminal() {
			e.setTaskStatus(ctx, task.ID, types.TaskStatusStopped, "batch setup failed")
		}
	}
	if err := e.store.SetBatchStatus(ctx, batch.ID, types.BatchStatusFailed, batchErr.Error()); err != nil {
		e.log.Errorf("batch %s: persist failure: %v", batch.ID, err)
	}
}

func (e *Executor) batchStopRequested(ctx context.Context, batchID string) bool {
	stopped, err := e.store.BatchStopRequested(ctx, batchID)
	if err != nil {
		e.log.Errorf("batch %s: read stop flag: %v", batchID, err)
		return false
	}
	return stopped
}

func (e *Executor) setTaskStatus(ctx context.Context, taskID string, status types.TaskStatus, message string) {
	if err := e.store.SetTaskStatus(ctx, taskID, status, message); err != nil {
		e.log.Errorf("task %s: persist status %s: %v", taskID, status, err)
	}
}

func (e *Executor) incrementCounter(ctx context.Context, batchID string, increment func(context.Context, string) error) {
	if err := increment(ctx, batchID); err != nil {
		e.log.Errorf("batch %s: increment counter: %v", batchID, err)
	}
}

func (e *Executor) destroySession(ctx context.Context, handle string) {
	if err := e.browser.Destroy(ctx, handle); err != nil {
		e.log.Errorf("destroy browser session %s: %v", handle, err)
	}
}
