package orchestrator

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/nidhogg/hivemind/internal/pool"
)

// QueueStatus tracks a queued execution's lifecycle.
type QueueStatus string

const (
	QueueQueued    QueueStatus = "queued"
	QueueRunning   QueueStatus = "running"
	QueueCompleted QueueStatus = "completed"
	QueueFailed    QueueStatus = "failed"
	QueueTimeout   QueueStatus = "timeout"
	QueueCancelled QueueStatus = "cancelled"
)

// QueuedTask is one pending (task, agent) execution. Ordering: higher
// priority first, then earlier enqueue time.
type QueuedTask struct {
	Task        *Task
	Agent       *pool.Agent
	Priority    Priority
	QueuedAt    time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Status      QueueStatus
	Done        chan *TaskResult

	index int
}

type queueHeap []*QueuedTask

func (h queueHeap) Len() int { return len(h) }

func (h queueHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h queueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *queueHeap) Push(x any) {
	qt := x.(*QueuedTask)
	qt.index = len(*h)
	*h = append(*h, qt)
}

func (h *queueHeap) Pop() any {
	old := *h
	n := len(old)
	qt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return qt
}

// taskQueue is a blocking priority queue consumed by dispatcher workers.
// Every push broadcasts to all waiters, so a burst of pushes cannot leave a
// worker asleep while items sit queued.
type taskQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items queueHeap
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *taskQueue) push(qt *QueuedTask) {
	q.mu.Lock()
	heap.Push(&q.items, qt)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// pop blocks until an item is available or the context ends.
func (q *taskQueue) pop(ctx context.Context) (*QueuedTask, error) {
	// The cancellation callback takes the lock so its broadcast cannot slip
	// in between the ctx check and Wait below.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.cond.Wait()
	}
	return heap.Pop(&q.items).(*QueuedTask), nil
}

func (q *taskQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}
