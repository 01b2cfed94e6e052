package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cmaprun/internal/harness"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one ledger row.
type Run struct {
	ID        string
	Scenario  string
	File      string
	Pass      bool
	Errors    []string
	Events    []harness.RecordedEvent
	StartedAt time.Time
	Duration  time.Duration
}

// NewRun builds a ledger row from a scenario result.
func NewRun(id, file string, result *harness.Result, startedAt time.Time, duration time.Duration) Run {
	return Run{
		ID:        id,
		Scenario:  result.Scenario,
		File:      file,
		Pass:      result.Pass,
		Errors:    result.Errors,
		Events:    result.Events,
		StartedAt: startedAt,
		Duration:  duration,
	}
}

// WriteRun inserts a run into the ledger.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - writing the same run
// twice is silently ignored.
//
// started_at is stored as fixed-width RFC 3339 UTC so that text ordering
// matches time ordering; duration is truncated to milliseconds.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: id is required")
	}

	errorsJSON, err := marshalErrors(run.Errors)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	eventsJSON, err := marshalEvents(run.Events)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, scenario, file, pass, errors, events, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Scenario,
		run.File,
		run.Pass,
		errorsJSON,
		eventsJSON,
		run.StartedAt.UTC().Format(timeLayout),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	return nil
}
