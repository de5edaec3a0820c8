package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/orchestrator"
)

// historySize bounds the in-memory notification history.
const historySize = 100

// Broadcaster fans task notifications out to every registered adapter and
// keeps a bounded history for inspection. It plugs into the coordinator as
// a Publisher; only terminal events leave the process.
type Broadcaster struct {
	mu       sync.RWMutex
	adapters []Adapter
	history  []*Notification
	logger   *zap.Logger
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{logger: logger}
}

// Register adds an adapter. Call before Connect.
func (b *Broadcaster) Register(a Adapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters = append(b.adapters, a)
}

// Connect brings every adapter up. A failing adapter is logged and skipped;
// the rest keep working.
func (b *Broadcaster) Connect(ctx context.Context) {
	b.mu.RLock()
	adapters := append([]Adapter(nil), b.adapters...)
	b.mu.RUnlock()

	for _, a := range adapters {
		if err := a.Connect(ctx); err != nil {
			b.logger.Warn("gateway adapter connect failed",
				zap.String("platform", a.Platform()), zap.Error(err))
			continue
		}
		b.logger.Info("gateway adapter connected", zap.String("platform", a.Platform()))
	}
}

// Publish converts terminal task events into notifications. Non-terminal
// progress stays internal.
func (b *Broadcaster) Publish(ctx context.Context, ev *orchestrator.TaskEvent) {
	if !ev.Terminal {
		return
	}

	n := &Notification{
		TaskID:    ev.TaskID,
		State:     string(ev.State),
		Title:     fmt.Sprintf("Task %s %s", ev.TaskID, ev.State),
		Body:      ev.Response,
		Timestamp: time.Now(),
	}
	if ev.Error != "" {
		n.Body = ev.Error
	}
	b.Send(ctx, n)
}

// Send delivers one notification to all adapters and records it.
func (b *Broadcaster) Send(ctx context.Context, n *Notification) {
	b.mu.Lock()
	b.history = append(b.history, n)
	if len(b.history) > historySize {
		b.history = b.history[len(b.history)-historySize:]
	}
	adapters := append([]Adapter(nil), b.adapters...)
	b.mu.Unlock()

	for _, a := range adapters {
		if err := a.Notify(ctx, n); err != nil {
			b.logger.Warn("notification delivery failed",
				zap.String("platform", a.Platform()),
				zap.String("task_id", n.TaskID),
				zap.Error(err))
		}
	}
}

// History returns the most recent notifications, oldest first.
func (b *Broadcaster) History() []*Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Notification(nil), b.history...)
}

// Close shuts all adapters down.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.adapters {
		if err := a.Close(); err != nil {
			b.logger.Warn("gateway adapter close failed",
				zap.String("platform", a.Platform()), zap.Error(err))
		}
	}
}
