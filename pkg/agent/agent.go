// Package agent runs the iteration loop for one task: call the model,
// execute the tool invocations it requests against the browser and the
// memory store, feed results back, and stop when the model reports a
// final status or a limit is hit.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/steerhq/steer/pkg/config"
	"github.com/steerhq/steer/pkg/conversation"
	"github.com/steerhq/steer/pkg/llm"
	"github.com/steerhq/steer/pkg/logging"
	"github.com/steerhq/steer/pkg/memory"
	"github.com/steerhq/steer/pkg/metrics"
	"github.com/steerhq/steer/pkg/store"
	"github.com/steerhq/steer/pkg/tokenizer"
	"github.com/steerhq/steer/pkg/types"
)

// ErrStopped is returned by Run when a stop request for the task or its
// batch is observed between iterations.
var ErrStopped = errors.New("agent: stop requested")

// Agent drives one task through the model/tool loop. An Agent is built
// per task run and is not reused.
type Agent struct {
	provider  llm.Provider
	driver    BrowserDriver
	memory    *memory.Store
	store     *store.Store
	cfg       config.ExecutionConfig
	sessionID string

	recon   *conversation.Reconstructor
	trimmer *conversation.Trimmer
	tok     *tokenizer.Tokenizer
	log     *logging.Logger

	// sleep is swapped out in tests so iteration delay does not slow them.
	sleep func(time.Duration)
}

// Option configures an Agent.
type Option func(*Agent)

// WithSessionID tags the audit message log with the owning session.
func WithSessionID(sessionID string) Option {
	return func(a *Agent) {
		a.sessionID = sessionID
	}
}

// WithSleep overrides the inter-iteration delay function, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *Agent) {
		a.sleep = sleep
	}
}

// New creates an agent for one task run.
func New(provider llm.Provider, driver BrowserDriver, mem *memory.Store, st *store.Store, cfg config.ExecutionConfig, opts ...Option) *Agent {
	logger, err := logging.NewLogger("agent")
	if err != nil {
		logger.Warnf("file logging unavailable: %v", err)
	}

	// Client-side counting is an estimate only; run without it if the
	// encoding cannot be loaded.
	tok, err := tokenizer.New()
	if err != nil {
		logger.Warnf("tokenizer unavailable, falling back to length-based estimates: %v", err)
		tok = nil
	}

	a := &Agent{
		provider: provider,
		driver:   driver,
		memory:   mem,
		store:    st,
		cfg:      cfg,
		recon:    conversation.NewReconstructor(st),
		trimmer:  conversation.NewTrimmer(cfg.ContextTriggerTokens, cfg.ContextKeepToolUses, cfg.ContextClearMinTokens, tok),
		tok:      tok,
		log:      logger,
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the iteration loop until the model reports a status, the
// iteration cap is reached, a stop is observed, or an infrastructure
// error occurs. userMessage is the task prompt for a fresh task, or the
// follow-up message when resuming.
//
// The conversation is rebuilt from the last persisted model call, so a
// resumed task continues with full knowledge of every action it already
// took.
func (a *Agent) Run(ctx context.Context, task *types.Task, userMessage string) (*types.StatusReport, error) {
	messages, err := a.recon.Rebuild(ctx, task.ID, userMessage)
	if err != nil {
		return nil, err
	}
	a.audit(ctx, task.ID, messages[len(messages)-1])

	lastInputTokens := 0
	for iteration := task.CurrentIteration; iteration < a.cfg.MaxIterations; iteration++ {
		if a.stopObserved(ctx, task) {
			a.log.Infof("task %s: stop observed at iteration %d", task.ID, iteration)
			return nil, ErrStopped
		}

		estimate := lastInputTokens
		if estimate == 0 {
			estimate = a.estimateTokens(messages)
		}
		if trimmed, didTrim := a.trimmer.Trim(messages, estimate); didTrim {
			a.log.Infof("task %s: trimmed context at ~%d tokens", task.ID, estimate)
			messages = trimmed
		}

		resp, err := a.provider.Complete(ctx, &llm.Request{
			Model:     a.cfg.Model,
			System:    a.systemPrompt(),
			Messages:  messages,
			Tools:     toolSpecs(),
			MaxTokens: a.cfg.MaxResponseTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: model call failed at iteration %d: %w", iteration, err)
		}
		metrics.ModelCalls.Inc()
		lastInputTokens = resp.Usage.InputTokens
		a.log.Debugf("task %s: iteration %d: %d tokens, stop=%s", task.ID, iteration, resp.Usage.Total(), resp.StopReason)
		if text := resp.Text(); text != "" {
			a.log.Debugf("task %s: model: %s", task.ID, text)
		}

		if err := a.persistCall(ctx, task.ID, iteration, messages, resp); err != nil {
			return nil, err
		}

		assistant := types.Message{Role: types.RoleAssistant, Content: resp.Blocks}
		messages = append(messages, assistant)
		a.audit(ctx, task.ID, assistant)

		uses := resp.ToolUses()
		if report := findStatusReport(uses); report != nil {
			a.log.Infof("task %s: reported %s after %d iterations", task.ID, report.Status, iteration+1)
			return report, nil
		}

		var reply types.Message
		if len(uses) == 0 {
			reply = types.NewUserMessage(noToolNudge)
		} else {
			var blocks []types.ContentBlock
			for _, use := range uses {
				blocks = append(blocks, a.executeToolUse(ctx, use)...)
			}
			reply = types.Message{Role: types.RoleUser, Content: blocks}
		}
		messages = append(messages, reply)
		a.audit(ctx, task.ID, reply)

		messages = applyRetention(messages, a.cfg.ScreenshotRetention, a.cfg.ThinkingRetention)

		if err := a.store.SetTaskIteration(ctx, task.ID, iteration+1); err != nil {
			a.log.Errorf("task %s: persist iteration: %v", task.ID, err)
		}

		if a.cfg.IterationDelay > 0 {
			a.sleep(a.cfg.IterationDelay)
		}
	}

	a.log.Warnf("task %s: iteration limit %d reached", task.ID, a.cfg.MaxIterations)
	return &types.StatusReport{
		Status:  types.AgentStatusFailed,
		Message: fmt.Sprintf("task did not finish within %d iterations", a.cfg.MaxIterations),
	}, nil
}

// stopObserved checks the persisted stop flags for the task and, when the
// task belongs to a batch, for the batch. Read errors are logged and
// treated as "keep running": a flaky store read must not kill a task.
func (a *Agent) stopObserved(ctx context.Context, task *types.Task) bool {
	stopped, err := a.store.TaskStopRequested(ctx, task.ID)
	if err != nil {
		a.log.Errorf("task %s: read stop flag: %v", task.ID, err)
	} else if stopped {
		return true
	}

	if task.BatchID == "" {
		return false
	}
	stopped, err = a.store.BatchStopRequested(ctx, task.BatchID)
	if err != nil {
		a.log.Errorf("batch %s: read stop flag: %v", task.BatchID, err)
		return false
	}
	return stopped
}

// persistCall records the request/response pair that makes the task
// resumable. A write failure here is fatal to the run: continuing would
// leave a gap the reconstructor cannot bridge.
func (a *Agent) persistCall(ctx context.Context, taskID string, seq int, messages []types.Message, resp *llm.Response) error {
	request, err := types.MarshalMessages(messages)
	if err != nil {
		return fmt.Errorf("agent: encode request: %w", err)
	}
	response, err := types.MarshalBlocks(resp.Blocks)
	if err != nil {
		return fmt.Errorf("agent: encode response: %w", err)
	}
	return a.store.RecordModelCall(ctx, &store.ModelCall{
		TaskID:       taskID,
		Seq:          seq,
		Request:      request,
		Response:     response,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	})
}

func (a *Agent) estimateTokens(messages []types.Message) int {
	if a.tok != nil {
		return a.tok.CountMessagesTokens(messages)
	}
	raw, err := types.MarshalMessages(messages)
	if err != nil {
		return 0
	}
	return len(raw) / 4
}

// audit mirrors the conversation into the message log for dashboards.
// Best-effort: the model_calls table is the durable record.
func (a *Agent) audit(ctx context.Context, taskID string, msg types.Message) {
	if err := a.store.AppendMessage(ctx, a.sessionID, taskID, &msg); err != nil {
		a.log.Errorf("task %s: append message: %v", taskID, err)
	}
}

// findStatusReport returns the parsed report when the model called
// report_status, or nil. A report with an unparseable body is treated as
// a failed report rather than being silently ignored; the model clearly
// wanted to stop.
func findStatusReport(uses []types.ToolUseBlock) *types.StatusReport {
	for _, use := range uses {
		if use.Name != ToolReportStatus {
			continue
		}
		var report types.StatusReport
		if err := json.Unmarshal(use.Input, &report); err != nil || report.Status == "" {
			return &types.StatusReport{
				Status:  types.AgentStatusFailed,
				Message: "agent ended the task with a malformed status report",
			}
		}
		return &report
	}
	return nil
}
