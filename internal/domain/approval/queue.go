package approval

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO of tasks. Enqueue never blocks; Dequeue parks
// until a task arrives, the context ends or the queue is closed.
type Queue struct {
	mu     sync.Mutex
	tasks  []*Task
	notify chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue appends t. It returns ErrQueueClosed after Close.
func (q *Queue) Enqueue(t *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue removes and returns the oldest task.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = nil
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return t, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of waiting tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Snapshot returns the waiting tasks in FIFO order.
func (q *Queue) Snapshot() []Snapshot {
	q.mu.Lock()
	tasks := append([]*Task(nil), q.tasks...)
	q.mu.Unlock()

	out := make([]Snapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Snapshot())
	}
	return out
}

// Close rejects further enqueues and returns the tasks still waiting, each
// moved to StateDropped.
func (q *Queue) Close() []*Task {
	q.mu.Lock()
	q.closed = true
	dropped := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	for _, t := range dropped {
		_ = t.transition(StateDropped, "gateway shutting down", "")
	}
	return dropped
}
