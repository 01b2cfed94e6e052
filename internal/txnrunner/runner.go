// Package txnrunner executes transaction-style driver test files: lists of
// operations addressed to named objects (collection, database, client,
// sessions), each with an expected result or error, followed by a check of
// the command-started events the driver emitted.
//
// The runner does not talk to a server. Callers supply Targets and Sessions
// that perform the operations; the runner translates arguments, routes each
// operation, verifies outcomes and runs withTransaction callbacks
// recursively.
package txnrunner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/iancoleman/strcase"
)

// Target performs operations by snake_case method name.
type Target interface {
	Execute(ctx context.Context, method string, args *Document) (any, error)
}

// OptionsTarget is a Target that can be re-derived with collection options
// (read preference, read and write concern).
type OptionsTarget interface {
	Target
	WithOptions(opts *Document) (Target, error)
}

// Session is a named client session that can run transactions.
type Session interface {
	Target

	// ID returns the session's lsid document.
	ID() *Document

	StartTransaction(ctx context.Context, opts *Document) error
	CommitTransaction(ctx context.Context) error
	AbortTransaction(ctx context.Context) error
	InTransaction() bool

	// EndSession aborts an open transaction and releases the session.
	EndSession(ctx context.Context) error
}

// NewLSID returns a fresh logical session id: {"id": <random UUID>}.
func NewLSID() *Document {
	return NewDocument("id", uuid.New())
}

// Targets are the fixed objects an operation may address.
type Targets struct {
	Client     Target
	Database   Target
	Collection Target
	TestRunner Target
}

// Operation is one step of a test.
type Operation struct {
	Object            string
	Name              string
	CommandName       string
	Arguments         *Document
	CollectionOptions *Document

	// Error is true when the step must fail without further detail.
	Error bool

	// Result is the expected result; HasResult tells a null result apart
	// from no expectation.
	Result    any
	HasResult bool
}

// ParseOperation decodes an operation document.
func ParseOperation(d *Document) (Operation, error) {
	var op Operation

	name, _ := d.Get("name")
	s, ok := name.(string)
	if !ok || s == "" {
		return op, fmt.Errorf("operation name must be a non-empty string")
	}
	op.Name = s

	object, _ := d.Get("object")
	if op.Object, ok = object.(string); !ok || op.Object == "" {
		return op, fmt.Errorf("%s: object must be a non-empty string", op.Name)
	}

	if v, ok := d.Get("command_name"); ok {
		if op.CommandName, ok = v.(string); !ok {
			return op, fmt.Errorf("%s: command_name must be a string, got %T", op.Name, v)
		}
	}

	op.Arguments = d.Doc("arguments")
	op.CollectionOptions = d.Doc("collectionOptions")

	if v, ok := d.Get("error"); ok {
		op.Error, _ = v.(bool)
	}
	op.Result, op.HasResult = d.Get("result")
	return op, nil
}

// expectsError reports whether the step must fail: either "error: true"
// or a result carrying any error assertion.
func (op Operation) expectsError() bool {
	if op.Error {
		return true
	}
	expected, ok := op.Result.(*Document)
	if !ok {
		return false
	}
	for _, key := range []string{"errorContains", "errorCodeName", "errorLabelsContain", "errorLabelsOmit"} {
		if v, ok := expected.Get(key); ok && truthy(v) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	}
	return true
}

// Runner routes operations to targets and checks their outcomes.
//
// Thread-safety: a Runner executes one test at a time.
type Runner struct {
	objects  map[string]Target
	sessions map[string]Session
	retry    RetryConfig
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithRetry sets the withTransaction retry bounds.
func WithRetry(cfg RetryConfig) Option {
	return func(r *Runner) { r.retry = cfg }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner over targets and named sessions. Session names
// are addressable as operation objects.
func NewRunner(targets Targets, sessions map[string]Session, opts ...Option) *Runner {
	r := &Runner{
		objects:  make(map[string]Target),
		sessions: sessions,
		retry:    DefaultRetryConfig(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for name, t := range map[string]Target{
		"client":     targets.Client,
		"database":   targets.Database,
		"collection": targets.Collection,
		"testRunner": targets.TestRunner,
	} {
		if t != nil {
			r.objects[name] = t
		}
	}
	for name, s := range sessions {
		r.objects[name] = s
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SessionIDs maps each session name to its lsid.
func (r *Runner) SessionIDs() map[string]any {
	ids := make(map[string]any, len(r.sessions))
	for name, s := range r.sessions {
		ids[name] = s.ID()
	}
	return ids
}

// EndSessions ends every session in name order and returns the first error.
func (r *Runner) EndSessions(ctx context.Context) error {
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	sort.Strings(names)

	var first error
	for _, name := range names {
		if err := r.sessions[name].EndSession(ctx); err != nil && first == nil {
			first = fmt.Errorf("end %s: %w", name, err)
		}
	}
	return first
}

// RunOperations runs ops in order and checks each outcome. It stops at the
// first unexpected error or failed expectation.
func (r *Runner) RunOperations(ctx context.Context, ops []Operation) error {
	return r.runOperations(ctx, ops, false)
}

// runOperations is shared with withTransaction callbacks. Inside a callback
// an expected error is re-raised after it has been checked, so the
// transaction sees it.
func (r *Runner) runOperations(ctx context.Context, ops []Operation, inCallback bool) error {
	for _, op := range ops {
		if op.expectsError() {
			_, err := r.RunOperation(ctx, op)
			if err == nil {
				return &ExpectationError{
					Kind:      ExpectNoError,
					Operation: op.Name,
					Expected:  "an error",
					Actual:    "operation succeeded",
				}
			}
			if checkErr := checkError(op, err); checkErr != nil {
				return checkErr
			}
			r.logger.Debug("expected error raised", "operation", op.Name, "error", err)
			if inCallback {
				return err
			}
			continue
		}

		result, err := r.RunOperation(ctx, op)
		if err != nil {
			if inCallback {
				return err
			}
			return fmt.Errorf("%s: %w", op.Name, err)
		}
		if op.HasResult {
			if err := checkResult(op, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunOperation translates op's arguments and executes it on its object.
func (r *Runner) RunOperation(ctx context.Context, op Operation) (any, error) {
	target, ok := r.objects[op.Object]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", op.Object)
	}

	if op.CollectionOptions.Len() > 0 && op.Object == "collection" {
		derivable, ok := target.(OptionsTarget)
		if !ok {
			return nil, fmt.Errorf("%s: collection does not accept collectionOptions", op.Name)
		}
		opts := &Document{}
		for _, k := range op.CollectionOptions.Keys() {
			v, _ := op.CollectionOptions.Get(k)
			opts.Set(strcase.ToSnake(k), v)
		}
		derived, err := derivable.WithOptions(opts)
		if err != nil {
			return nil, fmt.Errorf("%s: collectionOptions: %w", op.Name, err)
		}
		target = derived
	}

	args, err := TranslateArguments(op, op.Arguments, r.sessions)
	if err != nil {
		return nil, err
	}

	method := MethodName(op.Name)
	r.logger.Debug("operation", "object", op.Object, "method", method)

	if method == "with_transaction" {
		return r.withTransaction(ctx, op, target, args)
	}

	result, err := target.Execute(ctx, method, args)
	if err != nil {
		return nil, err
	}
	if method == "map_reduce" {
		if doc, ok := result.(*Document); ok && doc.Has("results") {
			result, _ = doc.Get("results")
		}
	}
	return result, nil
}

func (r *Runner) withTransaction(ctx context.Context, op Operation, target Target, args *Document) (any, error) {
	session, ok := target.(Session)
	if !ok {
		return nil, fmt.Errorf("%s: object %q is not a session", op.Name, op.Object)
	}

	raw, _ := args.Delete("callback")
	callback, _ := raw.(*Document)
	v, _ := callback.Get("operations")
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: callback must carry an operations list", op.Name)
	}
	ops, err := ParseOperations(list)
	if err != nil {
		return nil, fmt.Errorf("%s: callback: %w", op.Name, err)
	}

	return WithTransaction(ctx, session, args, func(ctx context.Context) (any, error) {
		return nil, r.runOperations(ctx, ops, true)
	}, r.retry)
}

// ParseOperations decodes a list of operation documents.
func ParseOperations(list []any) ([]Operation, error) {
	ops := make([]Operation, 0, len(list))
	for i, elem := range list {
		d, ok := elem.(*Document)
		if !ok {
			return nil, fmt.Errorf("operations[%d] must be a document, got %T", i, elem)
		}
		op, err := ParseOperation(d)
		if err != nil {
			return nil, fmt.Errorf("operations[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}
