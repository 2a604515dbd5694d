// Package index maintains the bitemporal index: for every entity, the
// entries mapping a valid-time interval and a transaction-time range to a
// document content address (or a tombstone).
//
// Each entity keeps two ordered trees (github.com/google/btree):
//
//   - current: entries still open on the transaction-time axis, keyed by
//     ValidFrom. They never overlap in valid time, so finding the entry that
//     contains a valid time, or every entry overlapping a span, is a
//     logarithmic descent plus a short range scan.
//   - history: entries closed by a later transaction, keyed by
//     (ValidFrom, TxFrom).
//
// Each write also records an O(1) clone of the current tree under the
// writing transaction's id. A lookup as of an earlier transaction binary
// searches those revisions and then descends one tree, so reads stay
// logarithmic however long the history grows.
//
// Puts and deletes split intervals: every open entry overlapping the new
// span is closed at the writing transaction and its uncovered remainders are
// carried forward as new entries. At any transaction time the valid-time
// timeline of an entity therefore has no overlapping visible entries.
//
// Mutations copy-on-write whole entities, and View clones the entity tree in
// O(1), so views are immutable and readers never block the single writer.
package index
