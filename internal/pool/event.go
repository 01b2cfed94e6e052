package pool

import "fmt"

// EventKind names a pool lifecycle event.
// The string values are the names scenario files use in "type" and "ignore".
type EventKind string

const (
	PoolCreated               EventKind = "ConnectionPoolCreated"
	PoolCleared               EventKind = "ConnectionPoolCleared"
	PoolClosed                EventKind = "ConnectionPoolClosed"
	ConnectionCreated         EventKind = "ConnectionCreated"
	ConnectionReady           EventKind = "ConnectionReady"
	ConnectionClosed          EventKind = "ConnectionClosed"
	ConnectionCheckOutStarted EventKind = "ConnectionCheckOutStarted"
	ConnectionCheckOutFailed  EventKind = "ConnectionCheckOutFailed"
	ConnectionCheckedOut      EventKind = "ConnectionCheckedOut"
	ConnectionCheckedIn       EventKind = "ConnectionCheckedIn"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{
	PoolCreated,
	PoolCleared,
	PoolClosed,
	ConnectionCreated,
	ConnectionReady,
	ConnectionClosed,
	ConnectionCheckOutStarted,
	ConnectionCheckOutFailed,
	ConnectionCheckedOut,
	ConnectionCheckedIn,
}

// ParseEventKind resolves a scenario event name.
func ParseEventKind(name string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", name)
}

// Reasons carried by ConnectionClosed and ConnectionCheckOutFailed.
const (
	ReasonStale           = "stale"
	ReasonIdle            = "idle"
	ReasonError           = "error"
	ReasonPoolClosed      = "poolClosed"
	ReasonTimeout         = "timeout"
	ReasonConnectionError = "connectionError"
)

// Event is an immutable record of one pool lifecycle occurrence.
// Which fields are meaningful depends on Kind; see Field.
type Event struct {
	Kind         EventKind      `json:"type"`
	Address      string         `json:"address"`
	ConnectionID int64          `json:"connectionId,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Options      map[string]any `json:"options,omitempty"`
}

// Field returns the value of the named field as scenario files spell it.
// ok is false when the event's kind does not carry the field.
func (e Event) Field(name string) (any, bool) {
	switch name {
	case "address":
		return e.Address, true
	case "connectionId":
		switch e.Kind {
		case ConnectionCreated, ConnectionReady, ConnectionClosed,
			ConnectionCheckedOut, ConnectionCheckedIn:
			return e.ConnectionID, true
		}
	case "reason":
		switch e.Kind {
		case ConnectionClosed, ConnectionCheckOutFailed:
			return e.Reason, true
		}
	case "options":
		if e.Kind == PoolCreated {
			return e.Options, true
		}
	}
	return nil, false
}

// Listener receives pool events. The pool invokes callbacks while holding its
// internal lock, so implementations must return promptly and must not call
// back into the pool.
type Listener interface {
	PoolCreated(Event)
	PoolCleared(Event)
	PoolClosed(Event)
	ConnectionCreated(Event)
	ConnectionReady(Event)
	ConnectionClosed(Event)
	ConnectionCheckOutStarted(Event)
	ConnectionCheckOutFailed(Event)
	ConnectionCheckedOut(Event)
	ConnectionCheckedIn(Event)
}

// publish routes e to the callback matching its kind.
func publish(l Listener, e Event) {
	switch e.Kind {
	case PoolCreated:
		l.PoolCreated(e)
	case PoolCleared:
		l.PoolCleared(e)
	case PoolClosed:
		l.PoolClosed(e)
	case ConnectionCreated:
		l.ConnectionCreated(e)
	case ConnectionReady:
		l.ConnectionReady(e)
	case ConnectionClosed:
		l.ConnectionClosed(e)
	case ConnectionCheckOutStarted:
		l.ConnectionCheckOutStarted(e)
	case ConnectionCheckOutFailed:
		l.ConnectionCheckOutFailed(e)
	case ConnectionCheckedOut:
		l.ConnectionCheckedOut(e)
	case ConnectionCheckedIn:
		l.ConnectionCheckedIn(e)
	}
}
