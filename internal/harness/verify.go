package harness

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/cmaprun/internal/canonical"
	"github.com/roach88/cmaprun/internal/pool"
)

// Sentinel is the wildcard value in descriptors: the field must be present
// and not null, its value is unconstrained.
const Sentinel = 42

// Verification failure types.
const (
	VerifyEventMismatch = "event_mismatch"
	VerifyMissingEvents = "missing_events"
	VerifyExtraEvents   = "extra_events"
	VerifyMissingError  = "missing_error"
	VerifyErrorMismatch = "error_mismatch"
)

// VerificationError is returned when the observed outcome does not match
// the scenario's expectations.
type VerificationError struct {
	Type     string // One of the Verify* constants
	Index    int    // Position in the filtered event log, -1 if not applicable
	Field    string // Mismatched field, empty if not applicable
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Verification failed: %s\n", e.Type)
	if e.Index >= 0 {
		fmt.Fprintf(&buf, "  Event: %d\n", e.Index)
	}
	if e.Field != "" {
		fmt.Fprintf(&buf, "  Field: %s\n", e.Field)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	return buf.String()
}

// FilterEvents drops events whose kind is in ignore.
func FilterEvents(events []RecordedEvent, ignore []pool.EventKind) []RecordedEvent {
	skip := make(map[pool.EventKind]bool, len(ignore))
	for _, k := range ignore {
		skip[k] = true
	}

	out := make([]RecordedEvent, 0, len(events))
	for _, e := range events {
		if !skip[e.Kind] {
			out = append(out, e)
		}
	}
	return out
}

// CheckEvents compares the recorded log, after dropping ignored kinds,
// against the expected descriptors. Elements are compared pairwise first;
// then a length difference is reported as missing or extra events, naming
// the unmatched suffix.
func CheckEvents(actual []RecordedEvent, expected []Descriptor, ignore []pool.EventKind) error {
	filtered := FilterEvents(actual, ignore)

	n := min(len(filtered), len(expected))
	for i := 0; i < n; i++ {
		if err := checkEvent(i, filtered[i].Event, expected[i]); err != nil {
			return err
		}
	}

	switch {
	case len(expected) > len(filtered):
		return &VerificationError{
			Type:     VerifyMissingEvents,
			Index:    len(filtered),
			Expected: formatDescriptors(expected[len(filtered):]),
			Actual:   fmt.Sprintf("%d events after filtering", len(filtered)),
		}
	case len(expected) < len(filtered):
		return &VerificationError{
			Type:     VerifyExtraEvents,
			Index:    len(expected),
			Expected: fmt.Sprintf("%d events", len(expected)),
			Actual:   formatEvents(filtered[len(expected):]),
		}
	}
	return nil
}

func checkEvent(index int, actual pool.Event, expected Descriptor) error {
	if string(actual.Kind) != expected.Type() {
		return &VerificationError{
			Type:     VerifyEventMismatch,
			Index:    index,
			Field:    "type",
			Expected: expected.Type(),
			Actual:   string(actual.Kind),
		}
	}

	for _, key := range canonical.SortedKeys(expected) {
		if key == "type" {
			continue
		}
		got, present := actual.Field(key)
		if !matchField(expected[key], got, present) {
			return &VerificationError{
				Type:     VerifyEventMismatch,
				Index:    index,
				Field:    key,
				Expected: formatValue(expected[key]),
				Actual:   formatField(got, present),
			}
		}
	}
	return nil
}

// fielder is implemented by pool errors that expose attributes to error
// descriptors.
type fielder interface {
	error
	Field(name string) (any, bool)
}

// errorKinds maps descriptor type names to extractors that find an error of
// that kind anywhere in a wrapped chain.
var errorKinds = map[string]func(error) (fielder, bool){
	"PoolClosedError":       asKind[*pool.PoolClosedError],
	"WaitQueueTimeoutError": asKind[*pool.WaitQueueTimeoutError],
	"ConnectionError":       asKind[*pool.ConnectionError],
}

func asKind[T fielder](err error) (fielder, bool) {
	var target T
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CheckError verifies that err matches the expected error descriptor: its
// kind, every declared field (sentinel-aware), and that its message
// contains the expected "message" substring. The substring match is
// case-sensitive.
func CheckError(err error, expected Descriptor) error {
	kind := expected.Type()
	if err == nil {
		return &VerificationError{
			Type:     VerifyMissingError,
			Index:    -1,
			Expected: kind,
			Actual:   "no error raised",
		}
	}

	extract, ok := errorKinds[kind]
	if !ok {
		return &VerificationError{
			Type:     VerifyErrorMismatch,
			Index:    -1,
			Field:    "type",
			Expected: kind,
			Actual:   fmt.Sprintf("unknown error type; raised %v", err),
		}
	}

	typed, ok := extract(err)
	if !ok {
		return &VerificationError{
			Type:     VerifyErrorMismatch,
			Index:    -1,
			Field:    "type",
			Expected: kind,
			Actual:   err.Error(),
		}
	}

	for _, key := range canonical.SortedKeys(expected) {
		if key == "type" || key == "message" {
			continue
		}
		got, present := typed.Field(key)
		if !matchField(expected[key], got, present) {
			return &VerificationError{
				Type:     VerifyErrorMismatch,
				Index:    -1,
				Field:    key,
				Expected: formatValue(expected[key]),
				Actual:   formatField(got, present),
			}
		}
	}

	if msg, ok := expected["message"].(string); ok && !strings.Contains(err.Error(), msg) {
		return &VerificationError{
			Type:     VerifyErrorMismatch,
			Index:    -1,
			Field:    "message",
			Expected: fmt.Sprintf("message containing %q", msg),
			Actual:   err.Error(),
		}
	}
	return nil
}

// matchField applies the sentinel rule, otherwise requires equality.
// Numbers compare by value regardless of their Go type.
func matchField(expected, actual any, present bool) bool {
	if !present {
		return false
	}
	if IsSentinel(expected) {
		return !isNil(actual)
	}
	return reflect.DeepEqual(normalize(expected), normalize(actual))
}

// IsSentinel reports whether v is the wildcard value.
func IsSentinel(v any) bool {
	n, ok := asInt64(v)
	return ok && n == Sentinel
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		if float32(int64(n)) == n {
			return int64(n), true
		}
	case float64:
		if float64(int64(n)) == n {
			return int64(n), true
		}
	}
	return 0, false
}

// normalize converts integral numbers to int64 throughout maps and slices.
func normalize(v any) any {
	if n, ok := asInt64(v); ok {
		return n
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	}
	return v
}

// eventFields returns the fields an event carries, keyed as scenario files
// spell them.
func eventFields(e pool.Event) map[string]any {
	fields := map[string]any{"type": string(e.Kind)}
	for _, name := range []string{"address", "connectionId", "reason", "options"} {
		if v, ok := e.Field(name); ok {
			fields[name] = v
		}
	}
	return fields
}

func formatEvents(events []RecordedEvent) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = formatValue(eventFields(e.Event))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatDescriptors(ds []Descriptor) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = formatValue(map[string]any(d))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatField(v any, present bool) string {
	if !present {
		return "<absent>"
	}
	return formatValue(v)
}

// formatValue renders v as canonical JSON when possible, falling back to %v.
func formatValue(v any) string {
	if b, err := canonical.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}
