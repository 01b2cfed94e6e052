package harness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/pool"
)

func TestRecorder_RecordsInOrderWithSeq(t *testing.T) {
	rec := NewRecorder()

	rec.PoolCreated(pool.Event{Kind: pool.PoolCreated})
	rec.ConnectionCreated(pool.Event{Kind: pool.ConnectionCreated, ConnectionID: 1})
	rec.ConnectionReady(pool.Event{Kind: pool.ConnectionReady, ConnectionID: 1})

	events := rec.Events()
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
	assert.Equal(t, pool.ConnectionReady, events[2].Kind)
}

func TestRecorder_EventsIsSnapshot(t *testing.T) {
	rec := NewRecorder()
	rec.PoolCreated(pool.Event{Kind: pool.PoolCreated})

	snapshot := rec.Events()
	rec.PoolClosed(pool.Event{Kind: pool.PoolClosed})

	assert.Len(t, snapshot, 1, "later events must not leak into an earlier snapshot")
	assert.Len(t, rec.Events(), 2)
}

func TestRecorder_Count(t *testing.T) {
	rec := NewRecorder()
	rec.ConnectionCheckedOut(pool.Event{Kind: pool.ConnectionCheckedOut, ConnectionID: 1})
	rec.ConnectionCheckedIn(pool.Event{Kind: pool.ConnectionCheckedIn, ConnectionID: 1})
	rec.ConnectionCheckedOut(pool.Event{Kind: pool.ConnectionCheckedOut, ConnectionID: 1})

	assert.Equal(t, 2, rec.Count(pool.ConnectionCheckedOut))
	assert.Equal(t, 1, rec.Count(pool.ConnectionCheckedIn))
	assert.Equal(t, 0, rec.Count(pool.PoolCleared))
}

func TestRecorder_ConcurrentWriters(t *testing.T) {
	rec := NewRecorder()
	const writers = 20
	const perWriter = 50

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				rec.ConnectionCheckOutStarted(pool.Event{Kind: pool.ConnectionCheckOutStarted})
				_ = rec.Count(pool.ConnectionCheckOutStarted)
			}
		}()
	}
	wg.Wait()

	events := rec.Events()
	require.Len(t, events, writers*perWriter)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq, "seq must follow log order")
	}
}

func TestRecorder_ReceivesPoolEvents(t *testing.T) {
	rec := NewRecorder()
	p := pool.New(DefaultAddress, pool.Options{}, rec)

	conn, err := p.CheckOut(context.Background())
	require.NoError(t, err)
	require.NoError(t, p.CheckIn(conn))
	require.NoError(t, p.Close())

	var got []pool.EventKind
	for _, e := range rec.Events() {
		got = append(got, e.Kind)
		assert.Equal(t, DefaultAddress, e.Address)
	}
	assert.Equal(t, []pool.EventKind{
		pool.PoolCreated,
		pool.ConnectionCheckOutStarted,
		pool.ConnectionCreated,
		pool.ConnectionReady,
		pool.ConnectionCheckedOut,
		pool.ConnectionCheckedIn,
		pool.PoolClosed,
		pool.ConnectionClosed,
	}, got)
}

func TestRecorder_AwaitUnblocksOnSecondEvent(t *testing.T) {
	rec := NewRecorder()

	done := make(chan error, 1)
	go func() {
		done <- rec.Await(context.Background(), pool.ConnectionCreated, 2, 5*time.Second, 5*time.Millisecond)
	}()

	rec.ConnectionCreated(pool.Event{Kind: pool.ConnectionCreated, ConnectionID: 1})

	select {
	case err := <-done:
		t.Fatalf("await returned after one event: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	rec.ConnectionCreated(pool.Event{Kind: pool.ConnectionCreated, ConnectionID: 2})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("await did not return after the second event")
	}
}

func TestRecorder_AwaitAlreadySatisfied(t *testing.T) {
	rec := NewRecorder()
	rec.PoolCleared(pool.Event{Kind: pool.PoolCleared})

	err := rec.Await(context.Background(), pool.PoolCleared, 1, time.Second, time.Hour)
	assert.NoError(t, err)
}

func TestRecorder_AwaitTimeout(t *testing.T) {
	rec := NewRecorder()

	err := rec.Await(context.Background(), pool.PoolCleared, 1, 30*time.Millisecond, 5*time.Millisecond)

	require.Error(t, err)
	assert.True(t, engine.IsTimeout(err))
	assert.Contains(t, err.Error(), "1 ConnectionPoolCleared event(s)")
}

func TestRecorder_AwaitSeesEventInsideShortTimeout(t *testing.T) {
	rec := NewRecorder()

	go func() {
		time.Sleep(30 * time.Millisecond)
		rec.ConnectionCheckedOut(pool.Event{Kind: pool.ConnectionCheckedOut, ConnectionID: 1})
	}()

	// The timeout is shorter than the poll interval; the final check still
	// runs at the bound.
	err := rec.Await(context.Background(), pool.ConnectionCheckedOut, 1, 150*time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestRecorder_AwaitTimesOutNoEarlierThanBound(t *testing.T) {
	rec := NewRecorder()
	timeout := 120 * time.Millisecond

	start := time.Now()
	err := rec.Await(context.Background(), pool.PoolCleared, 1, timeout, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, engine.IsTimeout(err))
	assert.GreaterOrEqual(t, elapsed, timeout)
}

func TestRecorder_AwaitCanceled(t *testing.T) {
	rec := NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rec.Await(ctx, pool.PoolCleared, 1, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, engine.IsTimeout(err))
}
