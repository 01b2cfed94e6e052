package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labeled returns a task that appends label to *out when run.
func labeled(out *[]string, label string) Task {
	return func(context.Context) error {
		*out = append(*out, label)
		return nil
	}
}

func TestTaskQueue_EnqueueDequeue(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	ok := q.Enqueue(labeled(&ran, "a"))
	require.True(t, ok, "enqueue should succeed")

	task, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	require.NoError(t, task(context.Background()))
	assert.Equal(t, []string{"a"}, ran)
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	for _, label := range []string{"A", "B", "C"} {
		q.Enqueue(labeled(&ran, label))
	}

	for {
		task, ok := q.TryDequeue()
		if !ok {
			break
		}
		require.NoError(t, task(context.Background()))
	}

	assert.Equal(t, []string{"A", "B", "C"}, ran)
}

func TestTaskQueue_TryDequeue_Empty(t *testing.T) {
	q := newTaskQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_WaitSignalsAfterEnqueue(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	q.Enqueue(labeled(&ran, "x"))

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected a signal after enqueue")
	}
}

func TestTaskQueue_SignalsCoalesce(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	q.Enqueue(labeled(&ran, "1"))
	q.Enqueue(labeled(&ran, "2"))

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("two enqueues should produce one pending signal")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestTaskQueue_CloseRejectsEnqueue(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	q.Enqueue(labeled(&ran, "pending"))
	abandoned := q.Close()

	assert.Equal(t, 1, abandoned)
	assert.False(t, q.Enqueue(labeled(&ran, "late")), "closed queue must reject tasks")
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Close(), "second close abandons nothing")
}

func TestTaskQueue_CloseIfEmpty(t *testing.T) {
	q := newTaskQueue()
	var ran []string

	q.Enqueue(labeled(&ran, "pending"))
	assert.False(t, q.CloseIfEmpty(), "non-empty queue stays open")
	assert.True(t, q.Enqueue(labeled(&ran, "more")))

	q.TryDequeue()
	q.TryDequeue()
	assert.True(t, q.CloseIfEmpty())
	assert.False(t, q.Enqueue(labeled(&ran, "late")))
}

func TestTaskQueue_ConcurrentEnqueue(t *testing.T) {
	q := newTaskQueue()
	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.Enqueue(func(context.Context) error { return nil })
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
