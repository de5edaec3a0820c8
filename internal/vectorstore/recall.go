package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/embedding"
)

// messagesCollection stores one point per remembered conversation turn.
const messagesCollection = "hivemind_messages"

// SessionMemory recalls prior conversation turns by semantic similarity,
// scoped to one session. It backs the coordinator's long-term memory.
type SessionMemory struct {
	client   *Client
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewSessionMemory ensures the backing collection exists and returns the
// memory.
func NewSessionMemory(ctx context.Context, client *Client, embedder embedding.Provider, logger *zap.Logger) (*SessionMemory, error) {
	dim := embedder.Dimension()
	if dim <= 0 {
		return nil, fmt.Errorf("embedder reports dimension %d", dim)
	}
	if err := client.EnsureCollection(ctx, messagesCollection, uint64(dim)); err != nil {
		return nil, err
	}
	return &SessionMemory{client: client, embedder: embedder, logger: logger}, nil
}

// Remember embeds and stores one conversation turn.
func (m *SessionMemory) Remember(ctx context.Context, sessionID, role, text string) error {
	if text == "" {
		return nil
	}
	vecs, err := m.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed message: %w", err)
	}
	err = m.client.Upsert(ctx, messagesCollection, uuid.New().String(), vecs[0], map[string]string{
		"session_id": sessionID,
		"role":       role,
		"text":       text,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("store message vector: %w", err)
	}
	return nil
}

// Recall returns up to limit prior turns from the session most similar to
// the prompt, best match first.
func (m *SessionMemory) Recall(ctx context.Context, sessionID, prompt string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 3
	}
	vecs, err := m.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	hits, err := m.client.Search(ctx, messagesCollection, vecs[0], uint64(limit),
		map[string]string{"session_id": sessionID})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		text := payloadString(h.Payload, "text")
		if text == "" {
			continue
		}
		if role := payloadString(h.Payload, "role"); role != "" {
			text = role + ": " + text
		}
		out = append(out, text)
	}
	m.logger.Debug("memory recall",
		zap.String("session_id", sessionID),
		zap.Int("hits", len(out)))
	return out, nil
}

// payloadString extracts a string payload field from a scored point; empty
// when the field is absent or not a string.
func payloadString(payload map[string]*pb.Value, key string) string {
	return payload[key].GetStringValue()
}
