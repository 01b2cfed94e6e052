package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/cmaprun/internal/canonical"
	"github.com/roach88/cmaprun/internal/harness"
)

// marshalErrors converts failure messages to canonical JSON TEXT for storage.
func marshalErrors(errs []string) (string, error) {
	if errs == nil {
		errs = []string{}
	}
	data, err := canonical.Marshal(errs)
	if err != nil {
		return "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(data), nil
}

// marshalEvents converts an event log to canonical JSON TEXT for storage.
func marshalEvents(events []harness.RecordedEvent) (string, error) {
	data, err := harness.MarshalEvents(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(data), nil
}

// unmarshalErrors parses the errors column. Returns an empty slice, not nil,
// for a run without failures.
func unmarshalErrors(data string) ([]string, error) {
	errs := []string{}
	if data == "" {
		return errs, nil
	}
	if err := json.Unmarshal([]byte(data), &errs); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	return errs, nil
}

// unmarshalEvents parses the events column back into recorded events.
// Pool option values come back as float64, as encoding/json decodes numbers.
func unmarshalEvents(data string) ([]harness.RecordedEvent, error) {
	events := []harness.RecordedEvent{}
	if data == "" {
		return events, nil
	}
	if err := json.Unmarshal([]byte(data), &events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return events, nil
}
