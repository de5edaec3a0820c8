package store

import (
	"context"
	"fmt"
	"time"
)

// Session groups the tasks and messages of one conversation.
type Session struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Message is one turn of a session's conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSession inserts a new active session.
func (s *Store) CreateSession(ctx context.Context, id, userID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, user_id, status)
		VALUES ($1, $2, 'active')
		RETURNING id, COALESCE(user_id,''), status, created_at`,
		id, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &sess, nil
}

// GetSession retrieves a session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(user_id,''), status, created_at, ended_at
		FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &sess.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &sess, nil
}

// EndSession marks a session ended. Ending an already-ended session is a
// no-op.
func (s *Store) EndSession(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions SET status = 'ended', ended_at = NOW()
		WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}
	return nil
}

// ListActiveSessions returns all sessions still marked active.
func (s *Store) ListActiveSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, COALESCE(user_id,''), status, created_at, ended_at
		FROM sessions WHERE status = 'active'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.CreatedAt, &sess.EndedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, nil
}

// AppendMessage stores one conversation turn in the given session.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, session_id, role, content)
		VALUES (gen_random_uuid(), $1, $2, $3)`,
		sessionID, role, content,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// GetMessages retrieves recent messages for a session, oldest first.
func (s *Store) GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT role, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
