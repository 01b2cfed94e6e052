package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/pool"
)

// Recorder is an append-only log of pool events. It is registered as the
// pool's listener; every callback appends exactly one event under a single
// mutex and returns without blocking.
//
// Readers get snapshots, so Count and Events are safe to call while the pool
// keeps publishing from other goroutines.
type Recorder struct {
	clock *engine.SeqClock

	mu     sync.Mutex
	events []RecordedEvent
}

var _ pool.Listener = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{clock: engine.NewSeqClock()}
}

func (r *Recorder) add(e pool.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Seq: r.clock.Next(), Event: e})
}

func (r *Recorder) PoolCreated(e pool.Event)               { r.add(e) }
func (r *Recorder) PoolCleared(e pool.Event)               { r.add(e) }
func (r *Recorder) PoolClosed(e pool.Event)                { r.add(e) }
func (r *Recorder) ConnectionCreated(e pool.Event)         { r.add(e) }
func (r *Recorder) ConnectionReady(e pool.Event)           { r.add(e) }
func (r *Recorder) ConnectionClosed(e pool.Event)          { r.add(e) }
func (r *Recorder) ConnectionCheckOutStarted(e pool.Event) { r.add(e) }
func (r *Recorder) ConnectionCheckOutFailed(e pool.Event)  { r.add(e) }
func (r *Recorder) ConnectionCheckedOut(e pool.Event)      { r.add(e) }
func (r *Recorder) ConnectionCheckedIn(e pool.Event)       { r.add(e) }

// Events returns a copy of the log in observation order.
func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events of the given kind.
func (r *Recorder) Count(kind pool.EventKind) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Await polls until at least count events of kind have been recorded.
//
// Polling is paced at one check per interval and bounded by timeout. The last
// sleep is clamped to the time remaining, so the final check happens at the
// bound itself; when it fails the error is an engine TIMEOUT naming the kind
// and count. Listener callbacks run under the pool's lock, so the recorder
// never pushes notifications to waiters.
func (r *Recorder) Await(ctx context.Context, kind pool.EventKind, count int, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for {
		if r.Count(kind) >= count {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return engine.NewTimeoutError("", fmt.Sprintf("%d %s event(s) after %s", count, kind, timeout))
		}

		delay := min(limiter.Reserve().Delay(), remaining)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
}
