package engine

import (
	"context"
	"sync/atomic"
	"time"
)

// SeqClock is a monotonic logical clock for event ordering.
//
// Every recorded pool event is stamped with a strictly increasing seq number
// from this clock, so the order in which the recorder observed events is
// explicit even when they arrive from different goroutines.
//
// Thread-safety: SeqClock is safe for concurrent use (atomic operations).
type SeqClock struct {
	seq atomic.Int64
}

// NewSeqClock creates a new clock starting at 0.
func NewSeqClock() *SeqClock {
	return &SeqClock{}
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *SeqClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *SeqClock) Current() int64 {
	return c.seq.Load()
}

// Clock provides wall-clock operations that tests can replace.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
