// Package store provides SQLite-backed durable storage for the tempodb
// transaction log and document bodies.
//
// The log is written in two phases:
//   - Submissions: Reserve allocates the next TransactionInstant and durably
//     records the submitted operations (and the bodies they put) before the
//     caller gets the instant back.
//   - Records: Append writes the outcome of a submission to the append-only
//     tx_log table and retires the submission row in the same SQLite
//     transaction. Aborted records carry no operations.
//
// # Critical Patterns
//
// Ordering: tx ids strictly increase and are never reused; tx times never
// decrease (a clock running backwards is clamped to the previous time, ties
// are broken by id). tx_log rows are appended in id order and triggers reject
// any UPDATE or DELETE.
//
// Content addressing: the log references document bodies by hash only, so an
// eviction removes bodies without rewriting history. Bodies live behind the
// DocumentStore interface: a SQLite table by default, or any other backend
// supplied with WithDocumentStore.
//
// Corruption: every committed payload is stored beside its digest; a payload
// whose digest does not match, or that fails to decode, is reported as a
// LOG_CORRUPTION error, never skipped.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: A reserved submission survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
