package gateway

import (
	"context"
	"time"
)

// Adapter is one outbound notification platform. Adapters only announce
// task outcomes; they never feed prompts back into the pipeline.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Notify(ctx context.Context, n *Notification) error
	Close() error
}

// Notification announces one task reaching a terminal state.
type Notification struct {
	TaskID    string    `json:"task_id"`
	State     string    `json:"state"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AdapterStatus reports one adapter's connection health.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}
