package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/pool"
)

// Executor runs scenarios. Each run gets a fresh pool, recorder and set of
// actors; nothing is shared between runs.
type Executor struct {
	cfg    Config
	clock  engine.Clock
	logger *slog.Logger
	dial   func(address string, id int64) error
	now    func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithClock replaces the clock used by wait operations.
func WithClock(clock engine.Clock) Option {
	return func(e *Executor) { e.clock = clock }
}

// WithDialer installs a dial hook on every pool the executor creates.
func WithDialer(dial func(address string, id int64) error) Option {
	return func(e *Executor) { e.dial = dial }
}

// WithPoolNow overrides the wall clock the pool uses for idle expiry.
func WithPoolNow(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor with the given bounds.
func NewExecutor(cfg Config, opts ...Option) *Executor {
	e := &Executor{
		cfg:    cfg,
		clock:  engine.RealClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a scenario with the default configuration.
func Run(scenario *Scenario) (*Result, error) {
	return NewExecutor(DefaultConfig()).Run(context.Background(), scenario)
}

// Run executes one scenario end to end.
//
// Execution flow:
//  1. Create the pool from poolOptions with a fresh recorder as listener
//  2. Run operations in order, stopping at the first driver-side error
//  3. Check the raised error against the declared one, or fail on any error
//     if none was declared
//  4. Check the event log, whether or not an error was raised
//  5. Tear down: stop all actors, join them, release held connections,
//     close the pool
//
// The returned error is non-nil only when the scenario could not be set up;
// every check failure is reported on the Result.
func (e *Executor) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	opts, err := pool.OptionsFromMap(scenario.PoolOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to build pool options: %w", err)
	}
	opts.Dial = e.dial
	opts.Now = e.now

	rec := NewRecorder()
	p := pool.New(e.cfg.Address, opts, rec)
	logger := e.logger.With("scenario", scenario.Name)
	d := NewDispatcher(p, rec, e.cfg, e.clock, logger)

	result := NewResult(scenario.Name)

	opErr := e.runOperations(ctx, d, scenario.Operations, logger)
	if opErr != nil {
		result.Error = opErr.Error()
	}

	if scenario.Error != nil {
		if err := CheckError(opErr, scenario.Error); err != nil {
			result.AddError(err.Error())
		}
	} else if opErr != nil {
		result.AddError(fmt.Sprintf("unexpected error: %v", opErr))
	}

	result.Events = rec.Events()
	if err := CheckEvents(result.Events, scenario.Events, scenario.Ignore); err != nil {
		result.AddError(err.Error())
	}

	for _, err := range d.Shutdown() {
		result.AddError(fmt.Sprintf("teardown: %v", err))
	}
	if err := p.Close(); err != nil {
		result.AddError(fmt.Sprintf("teardown: close pool: %v", err))
	}

	logger.Info("scenario completed",
		"pass", result.Pass,
		"events", len(result.Events),
		"errors", len(result.Errors),
	)
	return result, nil
}

func (e *Executor) runOperations(ctx context.Context, d *Dispatcher, ops []Operation, logger *slog.Logger) error {
	for i, op := range ops {
		if err := d.Dispatch(ctx, op); err != nil {
			logger.Warn("operation failed",
				"index", i,
				"name", op.Name,
				"thread", op.Thread,
				"error", err,
			)
			return fmt.Errorf("operations[%d] %s: %w", i, op.Name, err)
		}
	}
	return nil
}
