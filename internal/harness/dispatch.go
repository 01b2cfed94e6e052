package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/pool"
)

// OpKind enumerates the operation vocabulary. Scenario names outside this
// set are rejected with an UNSUPPORTED_OPERATION error.
type OpKind int

const (
	OpStart OpKind = iota + 1
	OpWait
	OpWaitForThread
	OpWaitForEvent
	OpCheckOut
	OpCheckIn
	OpClear
	OpClose
)

var opNames = map[string]OpKind{
	"start":         OpStart,
	"wait":          OpWait,
	"waitForThread": OpWaitForThread,
	"waitForEvent":  OpWaitForEvent,
	"checkOut":      OpCheckOut,
	"checkIn":       OpCheckIn,
	"clear":         OpClear,
	"close":         OpClose,
}

// ParseOpKind resolves a scenario operation name.
func ParseOpKind(name string) (OpKind, error) {
	if k, ok := opNames[name]; ok {
		return k, nil
	}
	return 0, engine.NewUnsupportedOperationError(name)
}

func (k OpKind) String() string {
	for name, kind := range opNames {
		if kind == k {
			return name
		}
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// Dispatcher runs scenario operations against one pool. Operations without
// a thread run on the caller's goroutine; the rest are scheduled on the
// named actor and run there in scheduling order.
//
// Thread-safety: Dispatch may be called from the driver while actors run
// handlers concurrently; the actor and label tables are mutex-guarded.
type Dispatcher struct {
	pool     *pool.Pool
	recorder *Recorder
	cfg      Config
	clock    engine.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	workers   map[string]*engine.Worker
	order     []string
	joined    map[string]bool
	labels    map[string]*pool.Conn
	unlabeled []*pool.Conn
}

// NewDispatcher creates a dispatcher for p. Events are awaited on rec.
func NewDispatcher(p *pool.Pool, rec *Recorder, cfg Config, clock engine.Clock, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:     p,
		recorder: rec,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		workers:  make(map[string]*engine.Worker),
		joined:   make(map[string]bool),
		labels:   make(map[string]*pool.Conn),
	}
}

type handler func(ctx context.Context, op Operation) error

func (d *Dispatcher) handler(kind OpKind) handler {
	switch kind {
	case OpStart:
		return d.start
	case OpWait:
		return d.wait
	case OpWaitForThread:
		return d.waitForThread
	case OpWaitForEvent:
		return d.waitForEvent
	case OpCheckOut:
		return d.checkOut
	case OpCheckIn:
		return d.checkIn
	case OpClear:
		return d.clear
	case OpClose:
		return d.close
	}
	return nil
}

// Dispatch runs op inline or schedules it on op.Thread.
// Inline failures are returned immediately. A failure on an actor is only
// visible when that actor is joined.
func (d *Dispatcher) Dispatch(ctx context.Context, op Operation) error {
	kind, err := ParseOpKind(op.Name)
	if err != nil {
		return err
	}
	h := d.handler(kind)

	if op.Thread == "" {
		d.logger.Debug("operation", "name", op.Name)
		return h(ctx, op)
	}

	w, err := d.worker(op.Thread)
	if err != nil {
		return err
	}

	d.logger.Debug("operation scheduled", "name", op.Name, "thread", op.Thread)
	if !w.Schedule(func(ctx context.Context) error { return h(ctx, op) }) {
		// The actor already exited; a failure it captured surfaces on join.
		d.logger.Warn("operation dropped, thread has exited",
			"name", op.Name,
			"thread", op.Thread,
		)
	}
	return nil
}

func (d *Dispatcher) worker(name string) (*engine.Worker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.workers[name]
	if !ok {
		return nil, engine.NewUnknownActorError(name)
	}
	return w, nil
}

func (d *Dispatcher) start(ctx context.Context, op Operation) error {
	target, err := op.String("target")
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.workers[target]; exists && !d.joined[target] {
		return fmt.Errorf("thread %q is already running", target)
	}
	if _, exists := d.workers[target]; !exists {
		d.order = append(d.order, target)
	}

	w := engine.NewWorker(target, engine.WorkerOptions{
		WakeInterval: d.cfg.WakeInterval,
		Logger:       d.logger,
	})
	d.workers[target] = w
	delete(d.joined, target)
	w.Start(ctx)
	return nil
}

func (d *Dispatcher) wait(ctx context.Context, op Operation) error {
	ms, err := op.Int("ms")
	if err != nil {
		return err
	}
	return d.clock.Sleep(ctx, time.Duration(ms)*time.Millisecond)
}

// waitForThread stops the target, waits for its queue to drain and returns
// the first failure it captured.
func (d *Dispatcher) waitForThread(ctx context.Context, op Operation) error {
	target, err := op.String("target")
	if err != nil {
		return err
	}
	w, err := d.worker(target)
	if err != nil {
		return err
	}

	w.Stop()
	err = w.Join(d.cfg.JoinTimeout)

	d.mu.Lock()
	d.joined[target] = !engine.IsTimeout(err)
	d.mu.Unlock()

	return err
}

func (d *Dispatcher) waitForEvent(ctx context.Context, op Operation) error {
	name, err := op.String("event")
	if err != nil {
		return err
	}
	kind, err := pool.ParseEventKind(name)
	if err != nil {
		return err
	}
	count, err := op.Int("count")
	if err != nil {
		return err
	}
	return d.recorder.Await(ctx, kind, count, d.cfg.EventTimeout, d.cfg.PollInterval)
}

func (d *Dispatcher) checkOut(ctx context.Context, op Operation) error {
	label, err := op.OptionalString("label")
	if err != nil {
		return err
	}

	if label != "" {
		d.mu.Lock()
		_, held := d.labels[label]
		d.mu.Unlock()
		if held {
			return fmt.Errorf("connection label %q is already held", label)
		}
	}

	conn, err := d.pool.CheckOut(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if label == "" {
		d.unlabeled = append(d.unlabeled, conn)
		return nil
	}
	if _, held := d.labels[label]; held {
		// Another actor claimed the label while we were checking out.
		d.pool.Discard(conn)
		return fmt.Errorf("connection label %q is already held", label)
	}
	d.labels[label] = conn
	return nil
}

func (d *Dispatcher) checkIn(ctx context.Context, op Operation) error {
	label, err := op.String("connection")
	if err != nil {
		return err
	}

	d.mu.Lock()
	conn, ok := d.labels[label]
	delete(d.labels, label)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("no checked-out connection labeled %q", label)
	}
	return d.pool.CheckIn(conn)
}

func (d *Dispatcher) clear(ctx context.Context, op Operation) error {
	d.pool.Clear()
	return nil
}

func (d *Dispatcher) close(ctx context.Context, op Operation) error {
	return d.pool.Close()
}

// Shutdown stops every actor, joins those not already joined and releases
// connections still held. It does not close the pool. The returned errors
// are actor failures and join timeouts, in actor start order.
func (d *Dispatcher) Shutdown() []error {
	d.mu.Lock()
	workers := make([]*engine.Worker, 0, len(d.order))
	for _, name := range d.order {
		if !d.joined[name] {
			workers = append(workers, d.workers[name])
		}
	}
	d.mu.Unlock()

	// Stop everything before joining anything so no actor keeps working
	// against a pool that is about to close.
	for _, w := range workers {
		w.Stop()
	}

	var errs []error
	for _, w := range workers {
		if err := w.Join(d.cfg.JoinTimeout); err != nil {
			d.logger.Warn("thread failed at teardown", "thread", w.Name(), "error", err)
			errs = append(errs, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	labels := make([]string, 0, len(d.labels))
	for label := range d.labels {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		d.pool.Discard(d.labels[label])
		delete(d.labels, label)
	}
	for _, conn := range d.unlabeled {
		d.pool.Discard(conn)
	}
	d.unlabeled = nil

	return errs
}

// Held returns the labels of connections currently checked out.
func (d *Dispatcher) Held() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	labels := make([]string, 0, len(d.labels))
	for label := range d.labels {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
