package txnrunner

import (
	"context"
	"fmt"
)

// commandNames maps fake collection methods to the command they send.
var commandNames = map[string]string{
	"insert_one":  "insert",
	"insert_many": "insert",
	"find":        "find",
	"update_one":  "update",
	"delete_one":  "delete",
	"aggregate":   "aggregate",
	"count":       "count",
}

type call struct {
	method string
	args   *Document
}

// fakeTarget records a command per call and replays scripted results and
// errors.
type fakeTarget struct {
	db       string
	commands *CommandRecorder
	results  map[string]any
	errs     map[string][]error
	calls    []call
	options  *Document
}

func newFakeTarget(commands *CommandRecorder) *fakeTarget {
	return &fakeTarget{
		db:       "txn-tests",
		commands: commands,
		results:  make(map[string]any),
		errs:     make(map[string][]error),
	}
}

func (t *fakeTarget) Execute(ctx context.Context, method string, args *Document) (any, error) {
	t.calls = append(t.calls, call{method: method, args: args})

	name := commandNames[method]
	cmd := NewDocument(name, "test")
	if method == "command" {
		cmd = args.Doc("command").Clone()
		if cmd.Len() > 0 {
			name = cmd.Keys()[0]
		}
	}
	if v, ok := args.Get("session"); ok {
		if s, ok := v.(*fakeSession); ok {
			cmd.Set("lsid", s.ID())
			if s.inTxn {
				cmd.Set("txnNumber", s.txnNumber)
				cmd.Set("autocommit", false)
			}
		}
	}
	if name != "" && t.commands != nil {
		t.commands.Started(CommandStartedEvent{CommandName: name, DatabaseName: t.db, Command: cmd})
	}

	if queue := t.errs[method]; len(queue) > 0 {
		t.errs[method] = queue[1:]
		if queue[0] != nil {
			return nil, queue[0]
		}
	}
	return t.results[method], nil
}

func (t *fakeTarget) WithOptions(opts *Document) (Target, error) {
	derived := *t
	derived.options = opts
	return &derived, nil
}

// fakeSession is an in-memory session that records transaction commands.
type fakeSession struct {
	lsid      *Document
	commands  *CommandRecorder
	inTxn     bool
	txnNumber int64
	txnOpts   *Document

	commitErrs []error
	starts     int
	ended      bool
}

func newFakeSession(commands *CommandRecorder) *fakeSession {
	return &fakeSession{lsid: NewLSID(), commands: commands}
}

// Execute serves the transaction operations tests address to a session.
func (s *fakeSession) Execute(ctx context.Context, method string, args *Document) (any, error) {
	switch method {
	case "start_transaction":
		return nil, s.StartTransaction(ctx, args)
	case "commit_transaction":
		return nil, s.CommitTransaction(ctx)
	case "abort_transaction":
		return nil, s.AbortTransaction(ctx)
	}
	return nil, fmt.Errorf("session has no method %q", method)
}

func (s *fakeSession) ID() *Document { return s.lsid }

func (s *fakeSession) StartTransaction(ctx context.Context, opts *Document) error {
	s.inTxn = true
	s.txnNumber++
	s.starts++
	s.txnOpts = opts
	return nil
}

func (s *fakeSession) send(name string) {
	if s.commands != nil {
		s.commands.Started(CommandStartedEvent{
			CommandName:  name,
			DatabaseName: "admin",
			Command:      NewDocument(name, 1, "lsid", s.lsid, "txnNumber", s.txnNumber, "autocommit", false),
		})
	}
}

func (s *fakeSession) CommitTransaction(ctx context.Context) error {
	s.send("commitTransaction")
	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		if err != nil {
			return err
		}
	}
	s.inTxn = false
	return nil
}

func (s *fakeSession) AbortTransaction(ctx context.Context) error {
	s.send("abortTransaction")
	s.inTxn = false
	return nil
}

func (s *fakeSession) InTransaction() bool { return s.inTxn }

func (s *fakeSession) EndSession(ctx context.Context) error {
	if s.inTxn {
		_ = s.AbortTransaction(ctx)
	}
	s.ended = true
	return nil
}

func transientErr(msg string) error {
	return &CommandError{
		Code:     251,
		CodeName: "NoSuchTransaction",
		Message:  msg,
		Labels:   []string{LabelTransientTransaction},
	}
}
