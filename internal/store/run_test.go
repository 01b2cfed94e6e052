package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmaprun/internal/harness"
	"github.com/roach88/cmaprun/internal/pool"
)

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "pool-create", testStart)
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "pool-create", got.Scenario)
	assert.Equal(t, "pool-create.yml", got.File)
	assert.True(t, got.Pass)
	assert.Empty(t, got.Errors)
	assert.True(t, testStart.Equal(got.StartedAt))
	assert.Equal(t, 15*time.Millisecond, got.Duration)

	require.Len(t, got.Events, 3)
	assert.Equal(t, int64(1), got.Events[0].Seq)
	assert.Equal(t, pool.PoolCreated, got.Events[0].Kind)
	assert.Equal(t, harness.DefaultAddress, got.Events[0].Address)
	assert.Equal(t, float64(2), got.Events[0].Options["maxPoolSize"])
	assert.Equal(t, int64(1), got.Events[2].ConnectionID)
}

func TestWriteRun_CanonicalColumns(t *testing.T) {
	s := createTestStore(t)

	run := createTestRun("run-1", "pool-create", testStart)
	run.Pass = false
	run.Errors = []string{"unexpected error: <nil>", "extra events"}
	require.NoError(t, s.WriteRun(context.Background(), run))

	var errorsJSON, eventsJSON string
	err := s.db.QueryRow(`SELECT errors, events FROM runs WHERE id = ?`, "run-1").Scan(&errorsJSON, &eventsJSON)
	require.NoError(t, err)

	assert.Equal(t, `["unexpected error: <nil>","extra events"]`, errorsJSON)
	assert.Equal(t,
		`[{"address":"localhost:27017","options":{"maxPoolSize":2},"seq":1,"type":"ConnectionPoolCreated"},`+
			`{"address":"localhost:27017","seq":2,"type":"ConnectionCheckOutStarted"},`+
			`{"address":"localhost:27017","connectionId":1,"seq":3,"type":"ConnectionCreated"}]`,
		eventsJSON)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := createTestRun("run-1", "first", testStart)
	require.NoError(t, s.WriteRun(ctx, run))

	run.Scenario = "second"
	require.NoError(t, s.WriteRun(ctx, run))

	got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Scenario)
}

func TestWriteRun_RequiresID(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteRun(context.Background(), createTestRun("", "x", testStart))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
}

func TestWriteRun_NilErrorsStoredAsEmptyArray(t *testing.T) {
	s := createTestStore(t)

	run := createTestRun("run-1", "x", testStart)
	run.Errors = nil
	require.NoError(t, s.WriteRun(context.Background(), run))

	var errorsJSON string
	require.NoError(t, s.db.QueryRow(`SELECT errors FROM runs`).Scan(&errorsJSON))
	assert.Equal(t, "[]", errorsJSON)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, createTestRun("run-a", "one", testStart)))
	require.NoError(t, s.WriteRun(ctx, createTestRun("run-b", "two", testStart.Add(time.Minute))))
	require.NoError(t, s.WriteRun(ctx, createTestRun("run-c", "three", testStart.Add(time.Minute))))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	// Equal start times fall back to the ID, descending.
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, ids)
	assert.Nil(t, runs[0].Events, "ListRuns does not load event logs")
}

func TestListRuns_Limit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.WriteRun(ctx, createTestRun(id, "s", testStart.Add(time.Duration(i)*time.Second))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)
}

func TestListRuns_Empty(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = s.RunEvents(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestNewRun_FromResult(t *testing.T) {
	result := harness.NewResult("checkout-basic")
	result.AddError("missing events")
	result.Events = []harness.RecordedEvent{
		{Seq: 1, Event: pool.Event{Kind: pool.PoolCreated, Address: harness.DefaultAddress}},
	}

	run := NewRun("run-9", "testdata/checkout-basic.yml", result, testStart, time.Second)

	assert.Equal(t, "run-9", run.ID)
	assert.Equal(t, "checkout-basic", run.Scenario)
	assert.Equal(t, "testdata/checkout-basic.yml", run.File)
	assert.False(t, run.Pass)
	assert.Equal(t, []string{"missing events"}, run.Errors)
	assert.Len(t, run.Events, 1)
	assert.Equal(t, time.Second, run.Duration)
}
