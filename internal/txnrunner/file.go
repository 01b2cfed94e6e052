package txnrunner

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is a transaction test file. Fields the runner does not use (data,
// failPoint, clientOptions, outcome) are ignored.
type File struct {
	DatabaseName   string     `yaml:"database_name"`
	CollectionName string     `yaml:"collection_name"`
	Tests          []TestCase `yaml:"tests"`
}

// TestCase is one test of a File.
type TestCase struct {
	Description  string      `yaml:"description"`
	SkipReason   string      `yaml:"skipReason"`
	Operations   []*Document `yaml:"operations"`
	Expectations []*Document `yaml:"expectations"`
}

// LoadFile reads a YAML or JSON test file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses a test file from YAML or JSON bytes.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse test file: %w", err)
	}
	for i, tc := range f.Tests {
		if tc.Description == "" {
			return nil, fmt.Errorf("tests[%d]: description is required", i)
		}
	}
	return &f, nil
}

// ParsedOperations decodes the test's operation documents.
func (tc TestCase) ParsedOperations() ([]Operation, error) {
	list := make([]any, len(tc.Operations))
	for i, d := range tc.Operations {
		list[i] = d
	}
	return ParseOperations(list)
}

// RunTest runs one test: its operations, then every session is ended, then
// the events recorded by commands are checked against the expectations.
// Commands recorded before the call (collection setup) are discarded.
// Sessions are ended even when an operation fails.
func (r *Runner) RunTest(ctx context.Context, tc TestCase, commands *CommandRecorder) error {
	ops, err := tc.ParsedOperations()
	if err != nil {
		return fmt.Errorf("%s: %w", tc.Description, err)
	}

	commands.Reset()

	runErr := r.RunOperations(ctx, ops)
	endErr := r.EndSessions(ctx)
	if runErr != nil {
		return fmt.Errorf("%s: %w", tc.Description, runErr)
	}
	if endErr != nil {
		return fmt.Errorf("%s: %w", tc.Description, endErr)
	}

	if err := CheckCommandEvents(commands.Events(), tc.Expectations, r.SessionIDs()); err != nil {
		return fmt.Errorf("%s: %w", tc.Description, err)
	}
	return nil
}
