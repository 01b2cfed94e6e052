// Package schema validates raw scenario documents against an embedded CUE
// schema before they are decoded into typed scenarios.
//
// Structural problems (a missing "operations" list, a misspelled event type,
// a negative "ms") are reported here with the path of the offending field.
// Semantic checks that need Go types, such as resolving operation names,
// stay with the loader.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed scenario.cue
var scenarioSchema string

// FieldError is one schema violation.
type FieldError struct {
	Path    string
	Message string
	Pos     token.Pos
}

// Pos points into the schema, not the document; documents are encoded from
// decoded values and carry no positions of their own.
func (e *FieldError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError collects every violation found in one document.
type ValidationError struct {
	Fields []*FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "schema validation failed: " + strings.Join(msgs, "; ")
}

// Validator checks documents against the #Scenario definition.
//
// A cue.Context is not safe for concurrent use, so Validate serializes
// callers.
type Validator struct {
	mu       sync.Mutex
	ctx      *cue.Context
	scenario cue.Value
}

// NewValidator compiles the embedded schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile scenario schema: %w", err)
	}

	def := root.LookupPath(cue.ParsePath("#Scenario"))
	if !def.Exists() {
		return nil, fmt.Errorf("scenario schema has no #Scenario definition")
	}

	return &Validator{ctx: ctx, scenario: def}, nil
}

// Validate checks a decoded document (maps, slices and scalars as produced
// by a YAML or JSON decoder). It returns *ValidationError on violations.
func (v *Validator) Validate(doc any) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	unified := v.scenario.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

var (
	defaultOnce      sync.Once
	defaultValidator *Validator
	defaultErr       error
)

// Validate checks doc with a shared validator compiled on first use.
func Validate(doc any) error {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewValidator()
	})
	if defaultErr != nil {
		return defaultErr
	}
	return defaultValidator.Validate(doc)
}

// toValidationError flattens CUE's error list, keeping the first message
// per path.
func toValidationError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Fields: []*FieldError{{Message: err.Error()}}}
	}

	seen := make(map[string]bool)
	out := &ValidationError{}
	for _, e := range errs {
		path := strings.Join(e.Path(), ".")
		if seen[path] {
			continue
		}
		seen[path] = true

		format, args := e.Msg()
		fe := &FieldError{
			Path:    path,
			Message: fmt.Sprintf(format, args...),
		}
		if positions := errors.Positions(e); len(positions) > 0 {
			fe.Pos = positions[0]
		}
		out.Fields = append(out.Fields, fe)
	}
	return out
}
