package types

// BatchStatus is the lifecycle state of a batch execution.
// Transitions only move forward: running is the initial state and
// completed, failed, and stopped are terminal.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusStopped   BatchStatus = "stopped"
)

// Terminal reports whether no further transitions are allowed.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed || s == BatchStatusStopped
}

// TaskStatus is the lifecycle state of a single task.
//
//	queued → running → {completed, failed, stopped}
//	running → paused   (agent asked for clarification)
//	paused  → running  (new user message arrived)
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusStopped   TaskStatus = "stopped"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether the task can never run again. Paused and stopped
// tasks are resumable and therefore not terminal.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AgentStatus is the status the agent itself reports through its
// loop-terminating tool. It is mapped onto TaskStatus by the executor.
type AgentStatus string

const (
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusNeedsHelp AgentStatus = "needs_help"
)

// TaskStatusFor maps an agent-reported status to the persisted task status.
// needs_help pauses the task so a follow-up user message can resume it.
func TaskStatusFor(s AgentStatus) TaskStatus {
	switch s {
	case AgentStatusCompleted:
		return TaskStatusCompleted
	case AgentStatusFailed:
		return TaskStatusFailed
	case AgentStatusNeedsHelp:
		return TaskStatusPaused
	default:
		return TaskStatusFailed
	}
}
