package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cmaprun/internal/pool"
	"github.com/roach88/cmaprun/internal/schema"
)

// Scenario is one declarative pool test: pool options, the operations to
// run and the events (and optionally the error) they must produce.
// Scenario files are YAML or JSON.
type Scenario struct {
	// Name identifies the scenario. Defaults to the file name without
	// extension when loaded from disk.
	Name string `yaml:"name"`

	// Version must be 1.
	Version int `yaml:"version"`

	// Style must be "unit".
	Style string `yaml:"style"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// PoolOptions configures the pool under test.
	PoolOptions map[string]any `yaml:"poolOptions"`

	// Operations run in order; those with a thread are scheduled on that actor.
	Operations []Operation `yaml:"operations"`

	// Events is the expected event log after Ignore filtering.
	Events []Descriptor `yaml:"events"`

	// Ignore lists event kinds excluded from the event check.
	Ignore []pool.EventKind `yaml:"ignore"`

	// Error, when set, is the error the operations must raise.
	Error Descriptor `yaml:"error"`
}

// Operation is a single scenario step. Keys other than name and thread are
// the operation's arguments.
type Operation struct {
	Name   string
	Thread string
	Args   map[string]any
}

// UnmarshalYAML splits an operation mapping into name, thread and arguments.
func (o *Operation) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return err
	}

	name, ok := raw["name"].(string)
	if !ok || name == "" {
		return fmt.Errorf("line %d: operation name must be a non-empty string", node.Line)
	}
	o.Name = name
	delete(raw, "name")

	switch thread := raw["thread"].(type) {
	case nil:
	case string:
		o.Thread = thread
	default:
		return fmt.Errorf("line %d: operation thread must be a string, got %T", node.Line, thread)
	}
	delete(raw, "thread")

	o.Args = raw
	return nil
}

// String returns a required string argument.
func (o Operation) String(key string) (string, error) {
	v, ok := o.Args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%s: missing %q argument", o.Name, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: %q must be a string, got %T", o.Name, key, v)
	}
	return s, nil
}

// OptionalString returns a string argument, or "" when absent or null.
func (o Operation) OptionalString(key string) (string, error) {
	if v, ok := o.Args[key]; !ok || v == nil {
		return "", nil
	}
	return o.String(key)
}

// Int returns a required integer argument.
func (o Operation) Int(key string) (int, error) {
	v, ok := o.Args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s: missing %q argument", o.Name, key)
	}
	n, ok := asInt64(v)
	if !ok {
		return 0, fmt.Errorf("%s: %q must be an integer, got %v", o.Name, key, v)
	}
	return int(n), nil
}

// Descriptor is an expected event or error: a "type" plus field
// constraints. The value 42 means "present and not null".
type Descriptor map[string]any

// Type returns the descriptor's "type" entry.
func (d Descriptor) Type() string {
	s, _ := d["type"].(string)
	return s
}

// LoadScenario reads and parses a scenario file.
// Returns an error if the file doesn't exist, is malformed, violates the
// scenario schema, contains unknown fields, or fails semantic validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s, nil
}

// ParseScenario parses a scenario from YAML or JSON bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to parse YAML: empty document")
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	// Strict decode catches fields the open parts of the schema allow
	// but the typed scenario does not.
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// validateScenario checks what the schema cannot: operation names resolve,
// operations carry the arguments their handler needs, and pool options
// are consistent.
func validateScenario(s *Scenario) error {
	if s.Version != 1 {
		return fmt.Errorf("version must be 1, got %d", s.Version)
	}
	if s.Style != "unit" {
		return fmt.Errorf("style must be \"unit\", got %q", s.Style)
	}

	if _, err := pool.OptionsFromMap(s.PoolOptions); err != nil {
		return fmt.Errorf("poolOptions: %w", err)
	}

	started := make(map[string]bool)
	for i, op := range s.Operations {
		kind, err := ParseOpKind(op.Name)
		if err != nil {
			return fmt.Errorf("operations[%d]: %w", i, err)
		}
		if err := validateArgs(kind, op); err != nil {
			return fmt.Errorf("operations[%d]: %w", i, err)
		}
		if kind == OpStart {
			target, _ := op.String("target")
			started[target] = true
		}
		if op.Thread != "" && !started[op.Thread] {
			return fmt.Errorf("operations[%d]: thread %q used before start", i, op.Thread)
		}
	}

	for i, d := range s.Events {
		if _, err := pool.ParseEventKind(d.Type()); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}

	for i, kind := range s.Ignore {
		if _, err := pool.ParseEventKind(string(kind)); err != nil {
			return fmt.Errorf("ignore[%d]: %w", i, err)
		}
	}

	if s.Error != nil {
		if _, ok := errorKinds[s.Error.Type()]; !ok {
			return fmt.Errorf("error: unknown error type %q", s.Error.Type())
		}
		if m, ok := s.Error["message"]; ok {
			if _, isString := m.(string); !isString {
				return fmt.Errorf("error: message must be a string, got %T", m)
			}
		}
	}

	return nil
}

func validateArgs(kind OpKind, op Operation) error {
	var err error
	switch kind {
	case OpStart, OpWaitForThread:
		_, err = op.String("target")
	case OpWait:
		_, err = op.Int("ms")
	case OpWaitForEvent:
		var name string
		if name, err = op.String("event"); err == nil {
			if _, err = pool.ParseEventKind(name); err == nil {
				_, err = op.Int("count")
			}
		}
	case OpCheckOut:
		_, err = op.OptionalString("label")
	case OpCheckIn:
		_, err = op.String("connection")
	}
	return err
}
