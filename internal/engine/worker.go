package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultWakeInterval bounds how long an idle worker sleeps before
// re-checking its queue and stop flag, in case a signal was coalesced away.
const DefaultWakeInterval = 10 * time.Second

// WorkerState is the lifecycle state of a Worker.
type WorkerState int32

const (
	WorkerCreated WorkerState = iota
	WorkerRunning
	WorkerStopping
	WorkerTerminated
)

func (s WorkerState) String() string {
	switch s {
	case WorkerCreated:
		return "created"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("WorkerState(%d)", int32(s))
	}
}

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	// WakeInterval overrides DefaultWakeInterval.
	WakeInterval time.Duration

	// Logger receives lifecycle and failure logs. Defaults to a discard logger.
	Logger *slog.Logger
}

// Worker is a named actor that executes scheduled tasks one at a time, in
// the order they were scheduled.
//
// Lifecycle: Created -> Running -> Stopping -> Terminated.
//
// Stop is cooperative: the task currently executing finishes, and tasks that
// are already queued still run before the worker exits. A task that returns an
// error (or panics) is different: the worker records the failure, abandons the
// rest of its queue and exits immediately. The failure only becomes visible
// through Join or Err.
//
// Thread-safety: all methods are safe for concurrent use.
type Worker struct {
	name   string
	queue  *taskQueue
	wake   time.Duration
	logger *slog.Logger

	state     atomic.Int32
	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}

	// err is written once by the run loop before done is closed.
	err error
}

// NewWorker creates a worker in the Created state.
func NewWorker(name string, opts WorkerOptions) *Worker {
	wake := opts.WakeInterval
	if wake <= 0 {
		wake = DefaultWakeInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{
		name:   name,
		queue:  newTaskQueue(),
		wake:   wake,
		logger: logger.With("actor", name),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Name returns the worker's name.
func (w *Worker) Name() string {
	return w.name
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Start launches the run loop on its own goroutine. Calling Start more than
// once, or after Stop on a worker that never started, has no effect.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.state.Store(int32(WorkerRunning))
		go w.run(ctx)
	})
}

// Schedule appends a task to the queue and wakes the worker if idle.
// Returns false if the worker has already exited and will never run it.
func (w *Worker) Schedule(t Task) bool {
	return w.queue.Enqueue(t)
}

// Stop asks the worker to exit once its queue is empty. It does not discard
// queued tasks. Stop is idempotent.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.state.CompareAndSwap(int32(WorkerRunning), int32(WorkerStopping))
	})

	// A worker that never started has nothing to drain.
	w.startOnce.Do(func() {
		w.queue.Close()
		w.state.Store(int32(WorkerTerminated))
		close(w.done)
	})
}

// Join blocks until the run loop exits or timeout elapses (timeout <= 0
// waits forever). It returns the captured task failure, if any, or a
// timeout RuntimeError.
func (w *Worker) Join(timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-w.done:
		return w.err
	case <-expired:
		return NewTimeoutError(w.name, fmt.Sprintf("worker to finish after %s", timeout))
	}
}

// Err returns the captured failure without blocking. It is nil while the
// worker is still running.
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.state.Store(int32(WorkerTerminated))

	ticker := time.NewTicker(w.wake)
	defer ticker.Stop()

	w.logger.Debug("worker started")

	for {
		if t, ok := w.queue.TryDequeue(); ok {
			if err := w.execute(ctx, t); err != nil {
				w.err = NewActorFailure(w.name, err)
				w.Stop()
				abandoned := w.queue.Close()
				w.logger.Warn("worker task failed",
					"error", err,
					"abandoned", abandoned,
				)
				return
			}
			continue
		}

		if w.stopping() && w.queue.CloseIfEmpty() {
			w.logger.Debug("worker stopped")
			return
		}

		select {
		case <-w.queue.Wait():
		case <-w.stopCh:
		case <-ticker.C:
		case <-ctx.Done():
			w.err = NewActorFailure(w.name, ctx.Err())
			w.queue.Close()
			return
		}
	}
}

// execute runs one task, converting a panic into an error.
func (w *Worker) execute(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t(ctx)
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}
