// Package mailbox holds inbound named events for scripts.
//
// Each event id owns a small bounded FIFO (capacity 2 by default). Pushing to
// a full queue silently drops the oldest value. Reading from an unknown or
// empty queue never fails: it returns an Event carrying CodeEmpty.
//
// Queues are created lazily on the first push for an id and are removed by
// CleanupUnusedEvents once they have sat idle past the TTL without ever being
// read by a script. A queue a script has read is retained until Clean.
//
// The mailbox has no dependency on the interpreter. Time comes from an
// injected clock so expiry is deterministic under test.
package mailbox
