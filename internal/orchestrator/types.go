package orchestrator

import (
	"context"
	"strings"
	"time"
)

// Priority orders tasks in the dispatch queue. Higher runs first.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// ParsePriority maps a wire string to a Priority, defaulting to normal.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// TaskState is the task lifecycle state. Transitions are monotonic: once a
// task reaches a terminal state it never leaves it.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Task is one user prompt routed to one or more agents. The coordinator
// exclusively owns Task values; everything handed out is a snapshot.
type Task struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	Priority     Priority   `json:"priority"`
	State        TaskState  `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	TargetTeams  []string   `json:"target_teams,omitempty"`
	TargetAgents []string   `json:"target_agents,omitempty"`
	Results      []*TaskResult `json:"results,omitempty"`
	Synthesized  string     `json:"synthesized_response,omitempty"`
	Error        string     `json:"error,omitempty"`
	SessionID    string     `json:"session_id,omitempty"`
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	UserID       string     `json:"user_id,omitempty"`

	// SessionContext carries primed conversation context for the executor.
	SessionContext string `json:"-"`
}

// TaskResult is the outcome of one (task, agent) execution. Results are
// appended in arrival order and never mutated in place.
type TaskResult struct {
	TaskID        string            `json:"task_id"`
	AgentID       string            `json:"agent_id"`
	TeamID        string            `json:"team_id"`
	Success       bool              `json:"success"`
	Output        string            `json:"output,omitempty"`
	Error         string            `json:"error,omitempty"`
	ExecutionTime time.Duration     `json:"execution_time"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// TaskEvent is broadcast to streaming subscribers on task progress.
type TaskEvent struct {
	TaskID   string    `json:"task_id"`
	State    TaskState `json:"state"`
	Message  string    `json:"message,omitempty"`
	Response string    `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Terminal bool      `json:"terminal"`
}

// Publisher receives task events. Implementations must be best-effort: a
// failing publisher never fails the task.
type Publisher interface {
	Publish(ctx context.Context, ev *TaskEvent)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev *TaskEvent)

func (f PublisherFunc) Publish(ctx context.Context, ev *TaskEvent) { f(ctx, ev) }

// MultiPublisher fans one event out to several publishers.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev *TaskEvent) {
	for _, p := range m {
		p.Publish(ctx, ev)
	}
}

// Repository is the persistence collaborator the pipeline consumes. All
// calls are made best-effort by the coordinator: transient failures are
// logged and never fail a task mid-flight.
type Repository interface {
	CreateTask(ctx context.Context, id, sessionID, prompt, status string) error
	UpdateTaskStatus(ctx context.Context, id, status, result string) error
	CreateCheckpoint(ctx context.Context, taskID string, state []byte) error
	CreateAgentExecution(ctx context.Context, id, agentID, taskID, status string) error
	CompleteAgentExecution(ctx context.Context, id, status, output string) error
}

// ContextCache stores per-session conversation context with a TTL. Cache
// failures degrade silently.
type ContextCache interface {
	SessionContext(ctx context.Context, sessionID string) (string, bool)
	StoreSessionContext(ctx context.Context, sessionID, text string) error
}

// Memory stores and retrieves prior conversation snippets by semantic
// similarity. Failures degrade silently.
type Memory interface {
	Recall(ctx context.Context, sessionID, prompt string, limit int) ([]string, error)
	Remember(ctx context.Context, sessionID, role, text string) error
}
