package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/cmaprun/internal/harness"
)

// ErrRunNotFound is returned when a run ID is not in the ledger.
var ErrRunNotFound = errors.New("run not found")

// ListRuns returns the most recent runs, newest first. limit <= 0 returns
// every run. The events column is not loaded; use RunEvents for that.
//
// Returns an empty slice (not nil) for an empty ledger.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, scenario, file, pass, errors, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ReadRun returns a single run including its event log.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, file, pass, errors, started_at, duration_ms
		FROM runs
		WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, err
	}

	run.Events, err = s.RunEvents(ctx, id)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// RunEvents returns the event log recorded for a run, in observation order.
func (s *Store) RunEvents(ctx context.Context, id string) ([]harness.RecordedEvent, error) {
	var eventsJSON string
	err := s.db.QueryRowContext(ctx, `SELECT events FROM runs WHERE id = ?`, id).Scan(&eventsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	return unmarshalEvents(eventsJSON)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		errorsJSON string
		startedAt  string
		durationMS int64
	)
	if err := row.Scan(
		&run.ID,
		&run.Scenario,
		&run.File,
		&run.Pass,
		&errorsJSON,
		&startedAt,
		&durationMS,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	var err error
	run.Errors, err = unmarshalErrors(errorsJSON)
	if err != nil {
		return Run{}, err
	}

	run.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.Duration = time.Duration(durationMS) * time.Millisecond

	return run, nil
}
