package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/cmaprun/internal/canonical"
)

// Snapshot is the golden form of a run: the scenario name, its outcome and
// the full event log in observation order.
type Snapshot struct {
	Scenario string
	Pass     bool
	Error    string
	Events   []RecordedEvent
}

// NewSnapshot captures result.
func NewSnapshot(result *Result) Snapshot {
	return Snapshot{
		Scenario: result.Scenario,
		Pass:     result.Pass,
		Error:    result.Error,
		Events:   result.Events,
	}
}

// toCanonicalMap converts the snapshot to plain maps for canonical JSON.
func (s Snapshot) toCanonicalMap() map[string]any {
	out := map[string]any{
		"scenario": s.Scenario,
		"pass":     s.Pass,
		"events":   eventMaps(s.Events),
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	return out
}

func eventMaps(events []RecordedEvent) []any {
	out := make([]any, len(events))
	for i, e := range events {
		fields := eventFields(e.Event)
		fields["seq"] = e.Seq
		out[i] = fields
	}
	return out
}

// MarshalEvents encodes an event log as a canonical JSON array, the same
// form the golden snapshots use.
func MarshalEvents(events []RecordedEvent) ([]byte, error) {
	return canonical.Marshal(eventMaps(events))
}

// MarshalCanonical encodes the snapshot as canonical JSON.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return canonical.Marshal(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(result).MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
