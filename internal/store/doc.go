// Package store provides SQLite-backed durable storage for the device runtime.
//
// Two kinds of data live here:
//   - Objects: small documents keyed by a fixed path. The current script
//     record (code, persist, checksum) is stored under ScriptPath so a
//     persistent script survives a power cycle.
//   - Outgoing events: an append-only history of every event a script
//     published, stamped with a logical sequence number.
//
// Objects are stored as canonical JSON (see internal/payload), so identical
// records always produce identical bytes.
//
// History reads are ordered by seq ASC, id ASC COLLATE BINARY and never by
// wall-clock timestamps.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
