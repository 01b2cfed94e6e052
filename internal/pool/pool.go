package pool

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultMaintenanceInterval = 50 * time.Millisecond

// Conn is a pooled connection handle.
type Conn struct {
	ID int64

	generation int
	lastUsed   time.Time
	inUse      bool
	closed     bool
}

// Pool is an in-memory connection pool that reports every lifecycle
// transition to its listeners. It stands in for a driver's pool so that
// scenarios can be executed without a server.
//
// Idle connections are reused most-recently-returned first. MaxPoolSize bounds
// the number of checked-out connections; waiting checkouts are bounded by
// WaitQueueTimeoutMS.
//
// Thread-safety: all methods are safe for concurrent use. Events are published
// under the pool lock, so listeners observe them in state-transition order.
type Pool struct {
	address   string
	opts      Options
	listeners []Listener
	now       func() time.Time

	mu         sync.Mutex
	idle       []*Conn
	generation int
	nextID     int64
	total      int
	closed     bool

	slots   chan struct{} // nil when MaxPoolSize is 0
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// New creates a pool for address and publishes ConnectionPoolCreated.
// When MinPoolSize is set a maintenance goroutine is started; Close stops it.
func New(address string, opts Options, listeners ...Listener) *Pool {
	p := &Pool{
		address:   address,
		opts:      opts,
		listeners: listeners,
		now:       opts.Now,
		closeCh:   make(chan struct{}),
	}
	if p.now == nil {
		p.now = time.Now
	}
	if opts.MaxPoolSize > 0 {
		p.slots = make(chan struct{}, opts.MaxPoolSize)
	}

	p.mu.Lock()
	p.emit(Event{Kind: PoolCreated, Options: opts.Map()})
	p.mu.Unlock()

	if opts.MinPoolSize > 0 {
		interval := opts.MaintenanceInterval
		if interval <= 0 {
			interval = defaultMaintenanceInterval
		}
		p.wg.Add(1)
		go p.maintain(interval)
	}

	return p
}

// Address returns the address the pool connects to.
func (p *Pool) Address() string {
	return p.address
}

// CheckOut returns a connection, creating one when no usable idle
// connection exists. It returns *PoolClosedError on a closed pool and
// *WaitQueueTimeoutError when MaxPoolSize connections stay checked out
// for longer than the wait queue timeout.
func (p *Pool) CheckOut(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	p.emit(Event{Kind: ConnectionCheckOutStarted})
	if p.closed {
		p.emit(Event{Kind: ConnectionCheckOutFailed, Reason: ReasonPoolClosed})
		p.mu.Unlock()
		return nil, &PoolClosedError{Address: p.address}
	}
	p.mu.Unlock()

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.release()
		p.emit(Event{Kind: ConnectionCheckOutFailed, Reason: ReasonPoolClosed})
		return nil, &PoolClosedError{Address: p.address}
	}

	c, err := p.takeLocked()
	if err != nil {
		p.release()
		return nil, err
	}

	c.inUse = true
	p.emit(Event{Kind: ConnectionCheckedOut, ConnectionID: c.ID})
	return c, nil
}

// CheckIn returns a checked-out connection to the pool. Connections from an
// older generation or returned after Close are closed instead of kept.
func (p *Pool) CheckIn(c *Conn) error {
	p.mu.Lock()
	if !c.inUse {
		p.mu.Unlock()
		return fmt.Errorf("connection %d is not checked out", c.ID)
	}
	c.inUse = false
	p.emit(Event{Kind: ConnectionCheckedIn, ConnectionID: c.ID})

	switch {
	case p.closed:
		p.closeLocked(c, ReasonPoolClosed)
	case c.generation != p.generation:
		p.closeLocked(c, ReasonStale)
	default:
		c.lastUsed = p.now()
		p.idle = append(p.idle, c)
	}
	p.mu.Unlock()

	p.release()
	return nil
}

// Discard closes a checked-out connection without publishing events and
// frees its slot. Used to release connections a caller still holds at
// shutdown.
func (p *Pool) Discard(c *Conn) {
	p.mu.Lock()
	if !c.inUse {
		p.mu.Unlock()
		return
	}
	c.inUse = false
	c.closed = true
	p.total--
	p.mu.Unlock()

	p.release()
}

// Clear marks every existing connection stale, publishes
// ConnectionPoolCleared and closes the idle connections.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	p.emit(Event{Kind: PoolCleared})
	p.drainIdleLocked(ReasonStale)
}

// Close shuts the pool down. Idle connections are closed immediately and
// checked-out connections are closed when they are returned. Close is
// idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeCh)
	p.emit(Event{Kind: PoolClosed})
	p.drainIdleLocked(ReasonPoolClosed)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// Stats reports the number of open and idle connections.
func (p *Pool) Stats() (total, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, len(p.idle)
}

// acquire reserves a checkout slot, waiting at most the wait queue timeout.
func (p *Pool) acquire(ctx context.Context) error {
	if p.slots == nil {
		return nil
	}

	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	var timeout <-chan time.Time
	if d := p.opts.waitQueueTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timeout:
		p.fail(ReasonTimeout)
		return &WaitQueueTimeoutError{Address: p.address, Timeout: p.opts.waitQueueTimeout()}
	case <-p.closeCh:
		p.fail(ReasonPoolClosed)
		return &PoolClosedError{Address: p.address}
	case <-ctx.Done():
		p.fail(ReasonTimeout)
		return ctx.Err()
	}
}

func (p *Pool) release() {
	if p.slots == nil {
		return
	}
	<-p.slots
}

func (p *Pool) fail(reason string) {
	p.mu.Lock()
	p.emit(Event{Kind: ConnectionCheckOutFailed, Reason: reason})
	p.mu.Unlock()
}

// takeLocked pops the most recently returned usable idle connection or
// creates a new one.
func (p *Pool) takeLocked() (*Conn, error) {
	for len(p.idle) > 0 {
		c := p.idle[len(p.idle)-1]
		p.idle[len(p.idle)-1] = nil
		p.idle = p.idle[:len(p.idle)-1]

		switch {
		case c.generation != p.generation:
			p.closeLocked(c, ReasonStale)
		case p.expired(c):
			p.closeLocked(c, ReasonIdle)
		default:
			return c, nil
		}
	}

	c, err := p.createLocked()
	if err != nil {
		p.emit(Event{Kind: ConnectionCheckOutFailed, Reason: ReasonConnectionError})
		return nil, err
	}
	return c, nil
}

func (p *Pool) createLocked() (*Conn, error) {
	p.nextID++
	c := &Conn{ID: p.nextID, generation: p.generation}
	p.total++
	p.emit(Event{Kind: ConnectionCreated, ConnectionID: c.ID})

	if p.opts.Dial != nil {
		if err := p.opts.Dial(p.address, c.ID); err != nil {
			p.closeLocked(c, ReasonError)
			return nil, &ConnectionError{Address: p.address, ConnectionID: c.ID, Err: err}
		}
	}

	p.emit(Event{Kind: ConnectionReady, ConnectionID: c.ID})
	return c, nil
}

func (p *Pool) expired(c *Conn) bool {
	maxIdle := p.opts.maxIdle()
	return maxIdle > 0 && p.now().Sub(c.lastUsed) > maxIdle
}

func (p *Pool) closeLocked(c *Conn, reason string) {
	if c.closed {
		return
	}
	c.closed = true
	p.total--
	p.emit(Event{Kind: ConnectionClosed, ConnectionID: c.ID, Reason: reason})
}

func (p *Pool) drainIdleLocked(reason string) {
	idle := p.idle
	p.idle = nil
	for _, c := range idle {
		p.closeLocked(c, reason)
	}
}

// maintain evicts expired idle connections and keeps MinPoolSize connections
// open. Its events arrive on this goroutine, not the caller's.
func (p *Pool) maintain(interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.closeCh:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}

		kept := p.idle[:0]
		for _, c := range p.idle {
			if p.expired(c) {
				p.closeLocked(c, ReasonIdle)
				continue
			}
			kept = append(kept, c)
		}
		p.idle = kept

		for p.total < p.opts.MinPoolSize {
			c, err := p.createLocked()
			if err != nil {
				break
			}
			c.lastUsed = p.now()
			// Prepend so that connections returned by callers stay preferred.
			p.idle = append([]*Conn{c}, p.idle...)
		}
		p.mu.Unlock()
	}
}

func (p *Pool) emit(e Event) {
	e.Address = p.address
	for _, l := range p.listeners {
		publish(l, e)
	}
}
