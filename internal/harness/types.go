package harness

import "github.com/roach88/cmaprun/internal/pool"

// RecordedEvent is a pool event stamped with the order in which the
// recorder observed it.
type RecordedEvent struct {
	Seq int64 `json:"seq"`
	pool.Event
}

// Result is the outcome of one scenario execution.
type Result struct {
	// Scenario is the scenario name.
	Scenario string `json:"scenario"`

	// Pass is true when every check succeeded and teardown was clean.
	Pass bool `json:"pass"`

	// Events is the recorder log at verification time, unfiltered.
	Events []RecordedEvent `json:"events"`

	// Error is the message of the error raised by the operations, if any.
	Error string `json:"error,omitempty"`

	// Errors contains verification and teardown failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Events:   []RecordedEvent{},
		Errors:   []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
