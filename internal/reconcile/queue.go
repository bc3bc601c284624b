// Package reconcile pushes committed inventory deltas to the backing store
// in the background, retrying failures without ever applying a delta twice.
package reconcile

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// Task is a queued delta with its retry state.
type Task struct {
	Delta     model.InventoryDelta `json:"delta"`
	Attempts  int                  `json:"attempts"`
	NotBefore time.Time            `json:"not_before"`
}

// Queue holds pending tasks.
type Queue interface {
	// Push appends a task. A first attempt whose delta key was already
	// pushed is ignored.
	Push(ctx context.Context, t Task) error

	// Pop removes the oldest task, waiting up to wait for one to arrive.
	// It reports false when none arrived.
	Pop(ctx context.Context, wait time.Duration) (Task, bool, error)

	// Len returns the number of queued tasks.
	Len(ctx context.Context) (int, error)

	// Pending returns a copy of the queued tasks without removing them.
	Pending(ctx context.Context) ([]Task, error)
}

// MemoryQueue is an in-process Queue. Tasks are lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  []Task
	seen   map[string]bool
	notify chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{seen: make(map[string]bool), notify: make(chan struct{}, 1)}
}

// Push implements Queue.
func (q *MemoryQueue) Push(_ context.Context, t Task) error {
	q.mu.Lock()
	if t.Attempts == 0 && t.Delta.Key != "" {
		if q.seen[t.Delta.Key] {
			q.mu.Unlock()
			return nil
		}
		q.seen[t.Delta.Key] = true
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pop implements Queue.
func (q *MemoryQueue) Pop(ctx context.Context, wait time.Duration) (Task, bool, error) {
	var timeout <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		timeout = t.C
	}
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks = q.tasks[1:]
			more := len(q.tasks) > 0
			q.mu.Unlock()
			if more {
				select {
				case q.notify <- struct{}{}:
				default:
				}
			}
			return t, true, nil
		}
		q.mu.Unlock()

		if wait <= 0 {
			return Task{}, false, nil
		}
		select {
		case <-q.notify:
		case <-timeout:
			return Task{}, false, nil
		case <-ctx.Done():
			return Task{}, false, ctx.Err()
		}
	}
}

// Len implements Queue.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks), nil
}

// Pending implements Queue.
func (q *MemoryQueue) Pending(context.Context) ([]Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.tasks), nil
}
