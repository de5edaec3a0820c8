package pool

import "time"

// AgentState tracks an agent's runtime lifecycle.
type AgentState string

const (
	StateIdle    AgentState = "idle"
	StatePending AgentState = "pending"
	StateRunning AgentState = "running"
	StateSuccess AgentState = "success"
	StateError   AgentState = "error"
	StatePaused  AgentState = "paused"
)

// AgentDef is the immutable identity an agent is registered with.
type AgentDef struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	TeamID       string   `json:"team_id"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Keywords     []string `json:"keywords"`
}

// Agent is a bounded role executed as a subprocess LLM call. Identity fields
// are set at registration and never change; runtime fields are mutated only
// through the pool so the pool's lock serializes writes.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	TeamID       string   `json:"team_id"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Keywords     []string `json:"keywords"`

	State         AgentState `json:"state"`
	CurrentTaskID string     `json:"current_task_id,omitempty"`
	LastActivity  time.Time  `json:"last_activity"`
	SuccessCount  int        `json:"success_count"`
	ErrorCount    int        `json:"error_count"`

	keywordSet map[string]struct{}
}

// Available reports whether the agent can accept a new task.
func (a *Agent) Available() bool {
	switch a.State {
	case StateIdle, StateSuccess, StateError:
		return true
	}
	return false
}

// Team is a named group of agents sharing a domain vocabulary. The member
// slice is a view over pool-owned agents, kept in registration order.
type Team struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Color       string   `json:"color"`

	Agents []*Agent `json:"agents"`
}
