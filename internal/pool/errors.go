package pool

import (
	"fmt"
	"time"
)

// PoolClosedError is returned by CheckOut on a closed pool.
type PoolClosedError struct {
	Address string
}

func (e *PoolClosedError) Error() string {
	return "Attempted to check out a connection from closed connection pool"
}

// Field exposes the error's attributes to scenario error descriptors.
func (e *PoolClosedError) Field(name string) (any, bool) {
	if name == "address" {
		return e.Address, true
	}
	return nil, false
}

// WaitQueueTimeoutError is returned by CheckOut when no slot frees up within
// the configured wait queue timeout.
type WaitQueueTimeoutError struct {
	Address string
	Timeout time.Duration
}

func (e *WaitQueueTimeoutError) Error() string {
	return "Timed out while checking out a connection from connection pool"
}

// Field exposes the error's attributes to scenario error descriptors.
func (e *WaitQueueTimeoutError) Field(name string) (any, bool) {
	switch name {
	case "address":
		return e.Address, true
	case "timeoutMS":
		return e.Timeout.Milliseconds(), true
	}
	return nil, false
}

// ConnectionError wraps a dial failure.
type ConnectionError struct {
	Address      string
	ConnectionID int64
	Err          error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %d to %s failed: %v", e.ConnectionID, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Field exposes the error's attributes to scenario error descriptors.
func (e *ConnectionError) Field(name string) (any, bool) {
	switch name {
	case "address":
		return e.Address, true
	case "connectionId":
		return e.ConnectionID, true
	}
	return nil, false
}
