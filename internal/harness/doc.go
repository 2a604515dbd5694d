// Package harness runs YAML bitemporal scenarios against a real engine.
//
// A scenario submits a sequence of transactions under a deterministic clock,
// then asserts on entity state at chosen (valid time, transaction time)
// pairs, on timelines, and on the log. Each run uses a fresh in-memory
// store, so the trace (tx ids, tx times and outcomes) is reproducible and
// can be compared against golden files.
//
// Scenario format:
//
//	name: open-ended-versions
//	clock: {start: "2000-02-01T00:00:00Z", step: 1s}
//	steps:
//	  - operations:
//	      - {op: put, id: pablo, attrs: {version: 0}, valid_from: "2000-01-01T01:00:00Z"}
//	    expect: committed
//	assertions:
//	  - type: entity
//	    id: pablo
//	    valid_time: "2000-01-01T02:00:00Z"
//	    expect: {version: 0}
package harness
