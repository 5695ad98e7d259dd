// Package harness runs conformance scenarios against a complete device stack.
//
// A scenario is a YAML file describing a sequence of steps (deliver a script,
// deliver an event from another device, advance the clock and tick the
// scheduler) followed by assertions about what the device did.
//
// Each run gets a fresh stack wired the way the daemon wires it: an engine,
// a bus, a gateway, an in-memory broker and an in-memory SQLite store. Wall
// time comes from a manual clock starting at testutil.Epoch and message ids
// from a sequential generator, so the broker trace of a scenario is
// byte-identical across runs and can be compared against a golden file.
//
// Example scenario:
//
//	name: push-on-tick
//	description: a task publishes one event per tick
//	steps:
//	  - script: (task 0 10 '(push-event "x" 1))
//	  - tick: {count: 3, advance_ms: 10}
//	assertions:
//	  - type: outgoing_count
//	    event: x
//	    count: 3
//	  - type: vm_state
//	    state: created
package harness
