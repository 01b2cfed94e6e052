package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/cmaprun/internal/harness"
	"github.com/roach88/cmaprun/internal/pool"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestRun creates a passing run with a short event log.
func createTestRun(id, scenario string, startedAt time.Time) Run {
	return Run{
		ID:       id,
		Scenario: scenario,
		File:     scenario + ".yml",
		Pass:     true,
		Errors:   []string{},
		Events: []harness.RecordedEvent{
			{Seq: 1, Event: pool.Event{Kind: pool.PoolCreated, Address: harness.DefaultAddress, Options: map[string]any{"maxPoolSize": int64(2)}}},
			{Seq: 2, Event: pool.Event{Kind: pool.ConnectionCheckOutStarted, Address: harness.DefaultAddress}},
			{Seq: 3, Event: pool.Event{Kind: pool.ConnectionCreated, Address: harness.DefaultAddress, ConnectionID: 1}},
		},
		StartedAt: startedAt,
		Duration:  15 * time.Millisecond,
	}
}
