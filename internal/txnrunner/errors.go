package txnrunner

import (
	"errors"
	"fmt"
	"strings"
)

// Error labels that drive the withTransaction retry loop.
const (
	LabelTransientTransaction     = "TransientTransactionError"
	LabelUnknownTransactionCommit = "UnknownTransactionCommitResult"
)

// CommandError is a server error reply.
type CommandError struct {
	Code     int
	CodeName string
	Message  string
	Labels   []string
}

func (e *CommandError) Error() string {
	if e.CodeName == "" {
		return e.Message
	}
	return fmt.Sprintf("%s, full error: {code: %d, codeName: %s}", e.Message, e.Code, e.CodeName)
}

// HasErrorLabel reports whether the reply carried label.
func (e *CommandError) HasErrorLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

type labeler interface {
	HasErrorLabel(label string) bool
}

// HasErrorLabel reports whether err, or any error it wraps, carries label.
func HasErrorLabel(err error, label string) bool {
	var l labeler
	if errors.As(err, &l) {
		return l.HasErrorLabel(label)
	}
	return false
}

// codeName returns the server code name of err, or "".
func codeName(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.CodeName
	}
	return ""
}

// Expectation failure kinds.
const (
	ExpectNoError       = "expected_error"
	ExpectErrorContains = "error_contains"
	ExpectErrorCodeName = "error_code_name"
	ExpectLabelsContain = "error_labels_contain"
	ExpectLabelsOmit    = "error_labels_omit"
	ExpectResult        = "result_mismatch"
	ExpectEventCount    = "event_count"
	ExpectEventField    = "event_field"
)

// ExpectationError reports an operation outcome or command event that does
// not match the test's expectations.
type ExpectationError struct {
	Kind      string
	Operation string // Operation name or event position
	Expected  string
	Actual    string
}

func (e *ExpectationError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Kind)
	if e.Operation != "" {
		fmt.Fprintf(&buf, "  Operation: %s\n", e.Operation)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	return buf.String()
}
