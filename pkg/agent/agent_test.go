package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steerhq/steer/pkg/browser"
	"github.com/steerhq/steer/pkg/config"
	"github.com/steerhq/steer/pkg/llm"
	"github.com/steerhq/steer/pkg/memory"
	"github.com/steerhq/steer/pkg/store"
	"github.com/steerhq/steer/pkg/types"
)

// scriptedProvider replays canned responses and records every request it
// receives.
type scriptedProvider struct {
	responses []*llm.Response
	requests  []*llm.Request
}

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.requests = append(p.requests, req)
	if len(p.requests) > len(p.responses) {
		return nil, fmt.Errorf("scripted provider exhausted after %d responses", len(p.responses))
	}
	return p.responses[len(p.requests)-1], nil
}

func (p *scriptedProvider) GetModel() string { return "scripted" }

// fakeDriver records browser actions and serves canned screenshots.
type fakeDriver struct {
	actions  []string
	clickErr error
}

func (d *fakeDriver) Navigate(url string) (string, error) {
	d.actions = append(d.actions, "navigate:"+url)
	return url, nil
}

func (d *fakeDriver) Click(x, y float64) error {
	d.actions = append(d.actions, fmt.Sprintf("click:%.0f,%.0f", x, y))
	return d.clickErr
}

func (d *fakeDriver) DoubleClick(x, y float64) error { return nil }
func (d *fakeDriver) TypeText(text string) error     { return nil }
func (d *fakeDriver) Press(key string) error         { return nil }
func (d *fakeDriver) Scroll(dx, dy float64) error    { return nil }

func (d *fakeDriver) Screenshot() (string, error) {
	d.actions = append(d.actions, "screenshot")
	return "aGVsbG8=", nil
}

func (d *fakeDriver) ReadPage(maxLength int) (*browser.PageSummary, error) {
	return &browser.PageSummary{Title: "Fake", Text: "fake page"}, nil
}

func (d *fakeDriver) Wait(time.Duration) {}

func toolUse(id, name, input string) types.ToolUseBlock {
	return types.ToolUseBlock{ID: id, Name: name, Input: json.RawMessage(input)}
}

func reportResponse(status, message string) *llm.Response {
	input, _ := json.Marshal(map[string]string{"status": status, "message": message})
	return &llm.Response{
		Blocks:     []types.ContentBlock{toolUse("tu_report", ToolReportStatus, string(input))},
		StopReason: llm.StopReasonToolUse,
		Usage:      types.Usage{InputTokens: 100, OutputTokens: 10},
	}
}

type testRig struct {
	store    *store.Store
	provider *scriptedProvider
	driver   *fakeDriver
	task     *types.Task
	agent    *Agent
}

func newTestRig(t *testing.T, cfg config.ExecutionConfig, responses ...*llm.Response) *testRig {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "steer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	task := &types.Task{
		ID:        "task_1",
		Prompt:    "order a large pizza",
		Status:    types.TaskStatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.UpsertTask(context.Background(), task))

	provider := &scriptedProvider{responses: responses}
	driver := &fakeDriver{}
	ag := New(provider, driver, memory.NewStore(st), st, cfg, WithSleep(func(time.Duration) {}))
	return &testRig{store: st, provider: provider, driver: driver, task: task, agent: ag}
}

func baseConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		MaxIterations:       10,
		ScreenshotRetention: 3,
		ThinkingRetention:   2,
		Model:               "scripted",
		MaxResponseTokens:   1024,
	}
}

func TestRunCompletesOnStatusReport(t *testing.T) {
	rig := newTestRig(t, baseConfig(),
		&llm.Response{
			Blocks: []types.ContentBlock{
				types.TextBlock{Text: "Opening the site."},
				toolUse("tu_1", ToolBrowser, `{"action":"navigate","url":"https://pizza.example"}`),
			},
			Usage: types.Usage{InputTokens: 50, OutputTokens: 20},
		},
		reportResponse("completed", "order placed"),
	)

	report, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusCompleted, report.Status)
	assert.Equal(t, "order placed", report.Message)

	assert.Equal(t, []string{"navigate:https://pizza.example"}, rig.driver.actions)

	// The second request carries the tool result paired to the invocation.
	require.Len(t, rig.provider.requests, 2)
	second := rig.provider.requests[1].Messages
	last := second[len(second)-1]
	require.Len(t, last.Content, 1)
	result, ok := last.Content[0].(types.ToolResultBlock)
	require.True(t, ok)
	assert.Equal(t, "tu_1", result.ToolUseID)
	assert.False(t, result.IsError)

	// Both round-trips were persisted for resumption.
	call, err := rig.store.LatestModelCall(context.Background(), rig.task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, call.Seq)

	// Iteration progress survived.
	stored, err := rig.store.GetTask(context.Background(), rig.task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CurrentIteration)
}

func TestRunIterationLimitFails(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxIterations = 3

	textOnly := &llm.Response{Blocks: []types.ContentBlock{types.TextBlock{Text: "hmm"}}}
	rig := newTestRig(t, cfg, textOnly, textOnly, textOnly)

	report, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusFailed, report.Status)
	assert.Contains(t, report.Message, "3 iterations")

	// A tool-less reply gets the nudge appended as the next user turn.
	second := rig.provider.requests[1].Messages
	assert.Equal(t, noToolNudge, second[len(second)-1].Text())
}

func TestRunObservesStopRequest(t *testing.T) {
	rig := newTestRig(t, baseConfig())
	require.NoError(t, rig.store.RequestTaskStop(context.Background(), rig.task.ID))

	_, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, rig.provider.requests)
}

func TestRunMemoryTool(t *testing.T) {
	rig := newTestRig(t, baseConfig(),
		&llm.Response{Blocks: []types.ContentBlock{
			toolUse("tu_1", ToolMemory, `{"command":"create","path":"memories/progress","file_text":"cart filled"}`),
		}},
		reportResponse("completed", "done"),
	)

	_, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.NoError(t, err)

	content, err := memory.NewStore(rig.store).View(context.Background(), "memories/progress")
	require.NoError(t, err)
	assert.Equal(t, "cart filled", content)
}

func TestRunToolErrorBecomesErrorResult(t *testing.T) {
	rig := newTestRig(t, baseConfig(),
		&llm.Response{Blocks: []types.ContentBlock{
			toolUse("tu_1", ToolBrowser, `{"action":"click","x":5,"y":5}`),
		}},
		reportResponse("failed", "button unreachable"),
	)
	rig.driver.clickErr = fmt.Errorf("element detached")

	report, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusFailed, report.Status)

	second := rig.provider.requests[1].Messages
	result := second[len(second)-1].Content[0].(types.ToolResultBlock)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].(types.TextBlock).Text, "element detached")
}

func TestRunScreenshotRetention(t *testing.T) {
	cfg := baseConfig()
	cfg.ScreenshotRetention = 2

	screenshot := func(id string) *llm.Response {
		return &llm.Response{Blocks: []types.ContentBlock{
			toolUse(id, ToolBrowser, `{"action":"screenshot"}`),
		}}
	}
	rig := newTestRig(t, cfg,
		screenshot("tu_1"), screenshot("tu_2"), screenshot("tu_3"), screenshot("tu_4"),
		reportResponse("completed", "done"),
	)

	_, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.NoError(t, err)

	// The final request carries at most 2 live screenshots; older ones are
	// markers, but every tool result is still present and paired.
	final := rig.provider.requests[len(rig.provider.requests)-1].Messages
	images := 0
	for _, msg := range final {
		for _, block := range msg.Content {
			if block.BlockType() == types.BlockTypeImage {
				images++
			}
		}
	}
	assert.LessOrEqual(t, images, 2)

	uses, results := types.CountBlockTypes(final)
	assert.Equal(t, 4, uses)
	assert.Equal(t, 4, results)
}

func TestRunResumeContinuesConversation(t *testing.T) {
	rig := newTestRig(t, baseConfig(),
		&llm.Response{Blocks: []types.ContentBlock{
			toolUse("tu_1", ToolBrowser, `{"action":"navigate","url":"https://pizza.example"}`),
		}},
	)

	// First run dies when the script runs out, after one persisted call.
	_, err := rig.agent.Run(context.Background(), rig.task, rig.task.Prompt)
	require.Error(t, err)

	// Resume with a fresh agent: the rebuilt conversation must carry the
	// prior tool exchange plus the new user turn.
	resumed := &scriptedProvider{responses: []*llm.Response{reportResponse("completed", "done")}}
	ag := New(resumed, rig.driver, memory.NewStore(rig.store), rig.store, baseConfig(),
		WithSleep(func(time.Duration) {}))

	task, err := rig.store.GetTask(context.Background(), rig.task.ID)
	require.NoError(t, err)

	report, err := ag.Run(context.Background(), task, "keep going")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusCompleted, report.Status)

	first := resumed.requests[0].Messages
	uses, results := types.CountBlockTypes(first)
	assert.Equal(t, 1, uses)
	assert.Equal(t, 0, results)
	assert.Equal(t, "keep going", first[len(first)-1].Text())
}

func TestFindStatusReportMalformed(t *testing.T) {
	report := findStatusReport([]types.ToolUseBlock{
		toolUse("tu_1", ToolReportStatus, `{broken`),
	})
	require.NotNil(t, report)
	assert.Equal(t, types.AgentStatusFailed, report.Status)

	assert.Nil(t, findStatusReport([]types.ToolUseBlock{
		toolUse("tu_1", ToolBrowser, `{"action":"screenshot"}`),
	}))
}
