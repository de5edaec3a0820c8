package store

import (
	"context"
	"fmt"
	"time"
)

// AgentExecution is the audit row for one (task, agent) run.
type AgentExecution struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agent_id"`
	TaskID     string     `json:"task_id"`
	Status     string     `json:"status"`
	Output     string     `json:"output,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CreateAgentExecution records the start of one agent run.
func (s *Store) CreateAgentExecution(ctx context.Context, id, agentID, taskID, status string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO agent_executions (id, agent_id, task_id, status)
		VALUES ($1, $2, $3, $4)`,
		id, agentID, taskID, status,
	)
	if err != nil {
		return fmt.Errorf("create agent execution %s: %w", id, err)
	}
	return nil
}

// CompleteAgentExecution records the outcome of one agent run.
func (s *Store) CompleteAgentExecution(ctx context.Context, id, status, output string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE agent_executions SET
			status = $2,
			output = NULLIF($3,''),
			finished_at = NOW()
		WHERE id = $1`,
		id, status, output,
	)
	if err != nil {
		return fmt.Errorf("complete agent execution %s: %w", id, err)
	}
	return nil
}

// ListExecutionsByTask returns a task's agent runs, oldest first.
func (s *Store) ListExecutionsByTask(ctx context.Context, taskID string) ([]*AgentExecution, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, agent_id, task_id, status, COALESCE(output,''), started_at, finished_at
		FROM agent_executions
		WHERE task_id = $1
		ORDER BY started_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions by task: %w", err)
	}
	defer rows.Close()

	var out []*AgentExecution
	for rows.Next() {
		var e AgentExecution
		if err := rows.Scan(&e.ID, &e.AgentID, &e.TaskID, &e.Status, &e.Output, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, &e)
	}
	return out, nil
}
