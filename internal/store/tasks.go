package store

import (
	"context"
	"fmt"
	"time"
)

// TaskRecord is the persisted view of a task. The coordinator remains the
// source of truth while a task is in flight; rows exist so history survives
// restarts.
type TaskRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id,omitempty"`
	Prompt     string     `json:"prompt"`
	Status     string     `json:"status"`
	Result     string     `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CreateTask inserts a new task row.
func (s *Store) CreateTask(ctx context.Context, id, sessionID, prompt, status string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tasks (id, session_id, prompt, status)
		VALUES ($1, NULLIF($2,''), $3, $4)`,
		id, sessionID, prompt, status,
	)
	if err != nil {
		return fmt.Errorf("create task %s: %w", id, err)
	}
	return nil
}

// UpdateTaskStatus updates a task's status and, when set, its result.
// Terminal statuses also stamp finished_at.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status, result string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE tasks SET
			status = $2,
			result = CASE WHEN $3 = '' THEN result ELSE $3 END,
			finished_at = CASE WHEN $2 IN ('completed','failed','cancelled') THEN NOW() ELSE finished_at END
		WHERE id = $1`,
		id, status, result,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	return nil
}

// GetTask retrieves a task row by id.
func (s *Store) GetTask(ctx context.Context, id string) (*TaskRecord, error) {
	var t TaskRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(session_id::text,''), prompt, status, COALESCE(result,''), created_at, finished_at
		FROM tasks WHERE id = $1`, id,
	).Scan(&t.ID, &t.SessionID, &t.Prompt, &t.Status, &t.Result, &t.CreatedAt, &t.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

// ListTasksBySession returns a session's tasks, newest first.
func (s *Store) ListTasksBySession(ctx context.Context, sessionID string, limit int) ([]*TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(session_id::text,''), prompt, status, COALESCE(result,''), created_at, finished_at
		FROM tasks WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks by session: %w", err)
	}
	defer rows.Close()

	var out []*TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Prompt, &t.Status, &t.Result, &t.CreatedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// ListTasksByAgent returns the tasks an agent executed, newest first.
func (s *Store) ListTasksByAgent(ctx context.Context, agentID string, limit int) ([]*TaskRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT t.id, COALESCE(t.session_id::text,''), t.prompt, t.status, COALESCE(t.result,''), t.created_at, t.finished_at
		FROM tasks t
		JOIN agent_executions e ON e.task_id = t.id
		WHERE e.agent_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks by agent: %w", err)
	}
	defer rows.Close()

	var out []*TaskRecord
	for rows.Next() {
		var t TaskRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Prompt, &t.Status, &t.Result, &t.CreatedAt, &t.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// CreateCheckpoint appends a routing-state snapshot for a task.
func (s *Store) CreateCheckpoint(ctx context.Context, taskID string, state []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO checkpoints (id, task_id, state)
		VALUES (gen_random_uuid(), $1, $2)`,
		taskID, state,
	)
	if err != nil {
		return fmt.Errorf("create checkpoint for task %s: %w", taskID, err)
	}
	return nil
}

// GetLatestCheckpoint returns the most recent checkpoint for a task, or nil
// when none exists.
func (s *Store) GetLatestCheckpoint(ctx context.Context, taskID string) ([]byte, error) {
	var state []byte
	err := s.db.QueryRow(ctx, `
		SELECT state FROM checkpoints
		WHERE task_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, taskID,
	).Scan(&state)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint for task %s: %w", taskID, err)
	}
	return state, nil
}
