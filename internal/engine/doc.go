// Package engine implements the embedded scripting runtime.
//
// The Engine owns one interpreter machine at a time and everything that
// outlives it: the script record used for dedup, the event mailbox and the
// scheduler tasks that drive re-evaluation.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Run processes queued work (script deliveries, incoming event wake-ups) and
// scheduler ticks in one goroutine. Every interaction with the VM, the
// mailbox, the record and the bus happens there. Enqueue, SubmitScript and the
// bus listeners the engine registers are the only entry points safe from
// other goroutines.
//
// Callers that do not use Run (tests, the exec command, the conformance
// harness) drive the same methods directly from a single goroutine:
// LoadScript, Tick and ProcessPending.
//
// Script Lifecycle:
//  1. A delivered script passes the dedup policy (record.go).
//  2. RunCode tears down any previous machine, builds a fresh one, cleans the
//     mailbox, requests an event refresh and evaluates the script once.
//  3. If the script called (task ...), the bridge task stays attached and each
//     scheduler tick re-evaluates the captured continuation (task.go).
//  4. When no re-evaluation is pending, or any pass fails, the machine is
//     destroyed.
//
// Output:
// print, log and error text go to the stdout, log and error bus channels,
// each followed by a notification on bus.TopicScript. Outgoing script events
// go to the outgoing-event channel followed by NEW_OUTGOING_EVENT.
package engine
