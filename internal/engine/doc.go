// Package engine implements the actor runtime used to execute scenarios.
//
// A Worker is a named goroutine with its own FIFO task queue. The scenario
// driver schedules tasks onto workers and later joins them; workers never
// share a queue and never coordinate with each other except through the
// explicit waits a scenario declares.
//
// Worker Lifecycle:
//
//	Created -> Running -> Stopping -> Terminated
//
// Failure Model:
// The first task that fails (returns an error or panics) is captured and the
// worker exits immediately, abandoning anything still queued. The failure is
// not propagated when it happens; it surfaces as an ACTOR_FAILURE
// RuntimeError from Join. A normal Stop drains the queue first.
//
// Waiting:
// An idle worker blocks on its queue signal, its stop signal and a periodic
// wake-up, so a coalesced signal can delay a task by at most one wake interval.
//
// Ordering:
// Every pool event is stamped with a seq number from SeqClock. Wall-clock time
// is only used for timeouts and idle expiry, never for ordering.
package engine
