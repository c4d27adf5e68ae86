package order

import (
	"context"

	"warrant-trader/internal/signal"
)

// Task is one unit of work for a processor lane.
type Task struct {
	Signal        *signal.Signal
	MonitorSymbol string
	// Protective marks a forced liquidation; its fill arms the
	// cooldown tracker and it uses the protective order type.
	Protective bool
}

// TaskQueue buffers tasks for one lane. Buy and sell lanes each own a
// queue so a stalled buy pipeline never delays protective sells.
type TaskQueue struct {
	ch chan Task
}

// NewTaskQueue creates a queue with the given capacity.
func NewTaskQueue(size int) *TaskQueue {
	if size <= 0 {
		size = 100
	}
	return &TaskQueue{ch: make(chan Task, size)}
}

// Enqueue adds a task; it returns false instead of blocking when the
// lane is saturated, leaving the signal to the caller to release.
func (q *TaskQueue) Enqueue(t Task) bool {
	select {
	case q.ch <- t:
		return true
	default:
		return false
	}
}

// Len returns the number of buffered tasks.
func (q *TaskQueue) Len() int {
	return len(q.ch)
}

// Close closes the queue; Drain exits once the buffer empties.
func (q *TaskQueue) Close() {
	close(q.ch)
}

// Drain consumes tasks strictly FIFO with a handler until the context
// is canceled or the queue closes.
func (q *TaskQueue) Drain(ctx context.Context, handler func(Task)) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-q.ch:
			if !ok {
				return
			}
			handler(t)
		}
	}
}
