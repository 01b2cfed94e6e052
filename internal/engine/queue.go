package engine

import (
	"context"
	"sync"
)

// Task is one unit of work scheduled on a Worker.
type Task func(ctx context.Context) error

// taskQueue is a thread-safe FIFO queue of tasks.
//
// The queue is unbounded so that the scenario driver never blocks while
// scheduling work onto a busy worker.
//
// The queue uses a channel for signaling to enable select-based waiting
// in the worker loop alongside stop and periodic wake-ups.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // Signals task availability (buffered, size 1)
}

// newTaskQueue creates an empty task queue.
func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]Task, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Signal availability (non-blocking - buffer of 1 coalesces multiple signals)
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (nil, false) if the queue is empty.
func (q *taskQueue) TryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]

	// Nil out the slot so the closure and its captures can be collected.
	q.tasks[0] = nil

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// CloseIfEmpty closes the queue only when no tasks are pending.
// The check and the close happen under one lock, so a task enqueued
// concurrently is either observed here or rejected by Enqueue.
func (q *taskQueue) CloseIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) > 0 {
		return false
	}
	q.closed = true
	return true
}

// Close rejects further Enqueue calls and drops pending tasks.
// Returns the number of tasks that were abandoned.
func (q *taskQueue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}

	q.closed = true
	abandoned := len(q.tasks)
	q.tasks = nil
	return abandoned
}
