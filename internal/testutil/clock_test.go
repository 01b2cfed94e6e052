package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManualClock_StartsAtGivenTime(t *testing.T) {
	clock := NewManualClock(epoch)
	assert.Equal(t, epoch, clock.Now())
}

func TestManualClock_SleepAdvances(t *testing.T) {
	clock := NewManualClock(epoch)

	err := clock.Sleep(context.Background(), 5*time.Second)
	assert.NoError(t, err)
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
	assert.Equal(t, []time.Duration{5 * time.Second}, clock.Sleeps())
}

func TestManualClock_SleepHonorsCanceledContext(t *testing.T) {
	clock := NewManualClock(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, clock.Sleep(ctx, time.Second), context.Canceled)
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(epoch)
	clock.Advance(time.Minute)
	clock.Advance(time.Minute)
	assert.Equal(t, epoch.Add(2*time.Minute), clock.Now())
	assert.Empty(t, clock.Sleeps(), "Advance is not a sleep")
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(epoch)
	const goroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = clock.Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()

	assert.Equal(t, epoch.Add(goroutines*time.Millisecond), clock.Now())
	assert.Len(t, clock.Sleeps(), goroutines)
}
