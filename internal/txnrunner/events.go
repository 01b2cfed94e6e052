package txnrunner

import (
	"fmt"
	"sort"
	"sync"
)

// CommandStartedEvent is a command as the driver sent it.
type CommandStartedEvent struct {
	CommandName  string
	DatabaseName string
	Command      *Document
}

// attr returns the event attribute an expectation names.
func (e CommandStartedEvent) attr(name string) (any, bool) {
	switch name {
	case "command":
		return e.Command, true
	case "command_name":
		return e.CommandName, true
	case "database_name":
		return e.DatabaseName, true
	}
	return nil, false
}

// CommandRecorder collects command-started events. Started may be called
// from any goroutine.
type CommandRecorder struct {
	mu     sync.Mutex
	events []CommandStartedEvent
}

// Started records e. The command document is copied.
func (r *CommandRecorder) Started(e CommandStartedEvent) {
	e.Command = e.Command.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in order.
func (r *CommandRecorder) Events() []CommandStartedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandStartedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded command names in order.
func (r *CommandRecorder) Names() []string {
	events := r.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.CommandName
	}
	return names
}

// Reset drops every recorded event.
func (r *CommandRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// CheckCommandEvents compares recorded command-started events with a test's
// expectations. Each expectation is a one-key document such as
// {command_started_event: {command: ..., command_name: ..., database_name: ...}}.
//
// Before comparing, volatile values are normalized: a non-zero getMore
// cursor id and the killCursors cursor list become 42, expected update
// statements default upsert and multi to false, an expected afterClusterTime
// of 42 takes the actual value, an expected recoveryToken of 42 matches any
// document, and an lsid equal to a session's id is replaced by the session
// name. An expected null key must be absent. No expectations means no check.
func CheckCommandEvents(actual []CommandStartedEvent, expectations []*Document, sessionIDs map[string]any) error {
	if len(expectations) == 0 {
		return nil
	}

	if len(actual) != len(expectations) {
		names := make([]string, len(actual))
		for i, e := range actual {
			names[i] = e.CommandName
		}
		return &ExpectationError{
			Kind:     ExpectEventCount,
			Expected: fmt.Sprintf("%d command started events", len(expectations)),
			Actual:   fmt.Sprintf("%d: %v", len(actual), names),
		}
	}

	sessionNames := make([]string, 0, len(sessionIDs))
	for name := range sessionIDs {
		sessionNames = append(sessionNames, name)
	}
	sort.Strings(sessionNames)

	for i, expectation := range expectations {
		if expectation.Len() == 0 {
			return fmt.Errorf("expectations[%d]: empty expectation", i)
		}
		eventType := expectation.Keys()[0]
		expected := expectation.Doc(eventType).Clone()
		if expected == nil {
			return fmt.Errorf("expectations[%d]: %s must be a document", i, eventType)
		}

		event := actual[i]
		event.Command = event.Command.Clone()
		if event.Command == nil {
			event.Command = &Document{}
		}
		anyRecoveryToken := normalizeCommand(&event, expected.Doc("command"), sessionIDs, sessionNames)

		where := fmt.Sprintf("expectations[%d] %s", i, event.CommandName)
		for _, attr := range expected.Keys() {
			want, _ := expected.Get(attr)
			got, ok := event.attr(attr)
			if !ok {
				return fmt.Errorf("%s: unknown event attribute %q", where, attr)
			}

			wantDoc, isDoc := want.(*Document)
			if !isDoc {
				if !equal(want, got) {
					return eventMismatch(where, attr, want, got)
				}
				continue
			}

			gotDoc, _ := got.(*Document)
			for _, key := range wantDoc.Keys() {
				val, _ := wantDoc.Get(key)
				actualVal, present := gotDoc.Get(key)
				switch {
				case val == nil:
					if present {
						return eventMismatch(where, attr+"."+key, "<absent>", actualVal)
					}
				case !present:
					return eventMismatch(where, attr+"."+key, val, "<absent>")
				case attr == "command" && key == "recoveryToken" && anyRecoveryToken:
					if _, isDoc := actualVal.(*Document); !isDoc {
						return eventMismatch(where, attr+"."+key, "any document", actualVal)
					}
				case !equal(val, actualVal):
					return eventMismatch(where, attr+"."+key, val, actualVal)
				}
			}
		}
	}
	return nil
}

// normalizeCommand rewrites event and expectedCmd in place and reports
// whether the expected recoveryToken is a wildcard.
func normalizeCommand(event *CommandStartedEvent, expectedCmd *Document, sessionIDs map[string]any, sessionNames []string) bool {
	cmd := event.Command

	switch event.CommandName {
	case "getMore":
		if v, ok := cmd.Get("getMore"); ok && !equal(v, 0) {
			cmd.Set("getMore", sentinel)
		}
	case "killCursors":
		cmd.Set("cursors", []any{sentinel})
	case "update":
		v, _ := expectedCmd.Get("updates")
		updates, _ := v.([]any)
		for _, u := range updates {
			if stmt, ok := u.(*Document); ok {
				stmt.SetDefault("upsert", false)
				stmt.SetDefault("multi", false)
			}
		}
	}

	if rc := expectedCmd.Doc("readConcern"); rc != nil {
		if v, _ := rc.Get("afterClusterTime"); isSentinel(v) {
			if actualTime, ok := cmd.Doc("readConcern").Get("afterClusterTime"); ok && actualTime != nil {
				rc.Set("afterClusterTime", actualTime)
			}
		}
	}

	anyRecoveryToken := false
	if v, ok := expectedCmd.Get("recoveryToken"); ok && isSentinel(v) {
		anyRecoveryToken = true
	}

	if lsid, ok := cmd.Get("lsid"); ok {
		for _, name := range sessionNames {
			if equal(lsid, sessionIDs[name]) {
				cmd.Set("lsid", name)
				break
			}
		}
	}
	return anyRecoveryToken
}

// sentinel is the placeholder tests use for values that vary per run.
const sentinel = 42

func isSentinel(v any) bool {
	n, ok := plain(v).(int64)
	return ok && n == sentinel
}

func eventMismatch(where, field string, expected, actual any) error {
	return &ExpectationError{
		Kind:      ExpectEventField,
		Operation: fmt.Sprintf("%s field %s", where, field),
		Expected:  fmt.Sprintf("%v", plain(expected)),
		Actual:    fmt.Sprintf("%v", plain(actual)),
	}
}
