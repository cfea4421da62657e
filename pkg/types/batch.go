package types

import "time"

// BatchExecution is the persisted record of one batch run. Counters are
// monotonically non-decreasing and CompletedCount+FailedCount never exceeds
// TaskCount; the store enforces increments transactionally.
type BatchExecution struct {
	ID               string      `json:"id"`
	SessionID        string      `json:"session_id"`
	TaskCount        int         `json:"task_count"`
	CompletedCount   int         `json:"completed_count"`
	FailedCount      int         `json:"failed_count"`
	Status           BatchStatus `json:"status"`
	BrowserSessionID string      `json:"browser_session_id,omitempty"`
	StopRequested    bool        `json:"stop_requested"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// Task is the persisted record of one natural-language instruction.
// BatchID is empty for tasks submitted outside a batch. The browser
// session a task drives is borrowed from its batch, never owned.
type Task struct {
	ID               string     `json:"id"`
	BatchID          string     `json:"batch_id,omitempty"`
	BatchIndex       int        `json:"batch_index"`
	Prompt           string     `json:"prompt"`
	Status           TaskStatus `json:"status"`
	CurrentIteration int        `json:"current_iteration"`
	ResultMessage    string     `json:"result_message,omitempty"`
	StopRequested    bool       `json:"stop_requested"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StatusReport is what the agent communicates through its report_status
// tool when it finishes, gives up, or needs clarification.
type StatusReport struct {
	Status    AgentStatus `json:"status"`
	Message   string      `json:"message"`
	Reasoning string      `json:"reasoning,omitempty"`
	NextStep  string      `json:"next_step,omitempty"`
	Evidence  []string    `json:"evidence,omitempty"`
}

// Usage carries the token counts the model provider reports for one call.
// InputTokens feeds the context trimmer's running estimate.
type Usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// WebhookEventTaskStatus is the only event type currently emitted.
const WebhookEventTaskStatus = "task_status"

// WebhookPayload is the notification body POSTed to a configured webhook
// URL after a task's terminal status has been persisted. Delivery is
// best-effort, at most once.
type WebhookPayload struct {
	Event       string      `json:"event"`
	BatchID     string      `json:"batch_id,omitempty"`
	TaskID      string      `json:"task_id"`
	TaskIndex   int         `json:"task_index"`
	TaskStatus  TaskStatus  `json:"task_status"`
	AgentStatus AgentStatus `json:"agent_status"`
	Message     string      `json:"message"`
	Reasoning   string      `json:"reasoning,omitempty"`
	NextStep    string      `json:"next_step,omitempty"`
	Evidence    []string    `json:"evidence,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}
