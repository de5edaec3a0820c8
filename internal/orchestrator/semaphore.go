package orchestrator

import "context"

// semaphore is a counting semaphore with context-aware acquisition.
type semaphore struct {
	slots chan struct{}
}

func newSemaphore(capacity int) *semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &semaphore{slots: make(chan struct{}, capacity)}
}

// acquire blocks until a slot is free or the context ends.
func (s *semaphore) acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees one slot. Every successful acquire must be paired with
// exactly one release.
func (s *semaphore) release() {
	<-s.slots
}

func (s *semaphore) inUse() int    { return len(s.slots) }
func (s *semaphore) capacity() int { return cap(s.slots) }
