package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/hivemind/internal/orchestrator"
)

// taskStream is the Redis Stream all task events are appended to.
const taskStream = "hivemind:tasks"

// Bus fans task events out through a Redis Stream so other processes can
// follow task progress. Publishing is best-effort.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus builds a Bus over the cache's Redis connection.
func NewBus(c *Cache, logger *zap.Logger) *Bus {
	return &Bus{rdb: c.rdb, logger: logger}
}

// Publish appends a task event to the stream. Errors are logged and dropped.
func (b *Bus) Publish(ctx context.Context, ev *orchestrator.TaskEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Warn("marshal task event", zap.Error(err))
		return
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: taskStream,
		MaxLen: 10_000,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		b.logger.Warn("publish task event",
			zap.String("task_id", ev.TaskID), zap.Error(err))
	}
}

// Subscribe follows the task event stream from now on. Cancel the context to
// stop; the returned channel is then closed.
func (b *Bus) Subscribe(ctx context.Context) <-chan *orchestrator.TaskEvent {
	ch := make(chan *orchestrator.TaskEvent, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{taskStream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev orchestrator.TaskEvent
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}
