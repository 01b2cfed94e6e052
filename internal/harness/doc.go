// Package harness executes pool scenarios and verifies their outcome.
//
// # Scenario Format
//
// Scenarios are YAML or JSON files:
//
//	version: 1
//	style: unit
//	description: must destroy checked in connection if pool has been closed
//	poolOptions:
//	  maxPoolSize: 1
//	operations:
//	  - name: checkOut
//	    label: conn
//	  - name: close
//	  - name: checkIn
//	    connection: conn
//	events:
//	  - type: ConnectionCheckedOut
//	    connectionId: 1
//	  - type: ConnectionPoolClosed
//	    address: 42
//	  - type: ConnectionCheckedIn
//	    connectionId: 1
//	  - type: ConnectionClosed
//	    connectionId: 1
//	    reason: poolClosed
//	ignore:
//	  - ConnectionPoolCreated
//	  - ConnectionCreated
//	  - ConnectionReady
//	  - ConnectionCheckOutStarted
//
// # Operations
//
//   - start: create and start the actor named by target
//   - wait: sleep for ms milliseconds
//   - waitForThread: stop target, wait for it to drain, surface its failure
//   - waitForEvent: poll until count events of kind event were recorded
//   - checkOut: check out a connection, remembering it under label if given
//   - checkIn: return the connection remembered under connection
//   - clear: clear the pool
//   - close: close the pool
//
// Any operation may carry a thread, in which case it is scheduled on that
// actor instead of running on the driver.
//
// # Verification
//
// Events of ignored kinds are dropped, then the remaining log must match the
// expected list pairwise and in length. An expected value of 42 matches any
// present, non-null value. When an error is declared, the operations must
// raise an error of that kind whose fields match and whose message contains
// the declared message.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/pool-close-destroy-conns.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
