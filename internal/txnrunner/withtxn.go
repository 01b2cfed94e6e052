package txnrunner

import (
	"context"
	"time"

	"github.com/roach88/cmaprun/internal/engine"
)

// DefaultRetryTimeLimit bounds how long WithTransaction keeps retrying.
const DefaultRetryTimeLimit = 120 * time.Second

// RetryConfig bounds the withTransaction retry loop.
type RetryConfig struct {
	// TimeLimit is measured from the first attempt. Zero disables retries.
	TimeLimit time.Duration

	// Clock measures elapsed time. Defaults to the wall clock.
	Clock engine.Clock
}

// DefaultRetryConfig returns a 120s limit on the wall clock.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{TimeLimit: DefaultRetryTimeLimit, Clock: engine.RealClock{}}
}

// Callback is the body of a transaction.
type Callback func(ctx context.Context) (any, error)

// WithTransaction runs callback inside a transaction on s and commits it.
//
// A callback error labeled TransientTransactionError restarts the whole
// transaction. A commit error labeled UnknownTransactionCommitResult retries
// the commit alone, unless the server reported MaxTimeMSExpired; one labeled
// TransientTransactionError restarts the transaction. Retries stop once
// cfg.TimeLimit has elapsed, and the last error is returned. Any other
// callback error aborts the transaction and is returned unchanged.
func WithTransaction(ctx context.Context, s Session, opts *Document, callback Callback, cfg RetryConfig) (any, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}
	start := clock.Now()
	within := func() bool {
		return clock.Now().Sub(start) < cfg.TimeLimit
	}

	for {
		if err := s.StartTransaction(ctx, opts); err != nil {
			return nil, err
		}

		result, err := callback(ctx)
		if err != nil {
			if s.InTransaction() {
				// The abort error is not interesting; the callback's is.
				_ = s.AbortTransaction(ctx)
			}
			if HasErrorLabel(err, LabelTransientTransaction) && within() {
				continue
			}
			return nil, err
		}

		// The callback may have committed or aborted on its own.
		if !s.InTransaction() {
			return result, nil
		}

		retry, err := commit(ctx, s, within)
		if err == nil {
			return result, nil
		}
		if !retry {
			return nil, err
		}
	}
}

// commit commits, retrying on an unknown commit result. retry is true when
// the whole transaction should be run again.
func commit(ctx context.Context, s Session, within func() bool) (retry bool, err error) {
	for {
		err = s.CommitTransaction(ctx)
		if err == nil {
			return false, nil
		}
		if !within() {
			return false, err
		}
		switch {
		case HasErrorLabel(err, LabelUnknownTransactionCommit) && codeName(err) != "MaxTimeMSExpired":
			continue
		case HasErrorLabel(err, LabelTransientTransaction):
			return true, err
		default:
			return false, err
		}
	}
}
