// Package engine implements the tempodb transaction processor and snapshot
// queries.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Submissions are reserved concurrently but applied by one goroutine, in
// transaction id order. This ensures:
// - A total order across concurrent submitters
// - The index non-overlap invariant without entity-level locking
// - Replay after a crash produces the same outcomes
//
// Submission Flow:
// 1. Submit validates operations (malformed input never consumes an id)
// 2. The store reserves the next instant and durably records the submission
// 3. Submit returns the instant; the submission is enqueued
// 4. Engine.Run() dequeues submissions one at a time
// 5. Match / MatchNotExists are evaluated against the state immediately
//    before the transaction
// 6. The outcome is appended to the log (operations only when committed)
// 7. On commit the index is mutated in declaration order
// 8. The indexed watermark advances, then listeners are notified
//
// Readers take an O(1) copy-on-write view of the index. A Snapshot pins
// that view to a (valid time, transaction time) pair and never changes.
//
// CRITICAL PATTERNS:
//
// Reserved instants always resolve. The Run loop never drops a dequeued
// submission, and Open re-enqueues submissions left pending by a crash.
//
// Log appends are never retried. A failed append stops the Run loop with a
// LOG_APPEND_FAILURE; waiters see the error instead of a timeout.
package engine
