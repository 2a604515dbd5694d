// Package model defines the foundational types of tempodb: document values,
// documents, transaction instants, operations and log records.
//
// All other internal packages import model; model imports nothing internal.
//
// Key constraints:
//   - Document attributes use a closed set of value kinds (string, int, bool,
//     array, object). Floats and nulls are rejected when a document is validated.
//   - Documents are content-addressed: identity of a body is the SHA-256 of its
//     RFC 8785 canonical JSON with domain separation.
//   - A zero time.Time in an operation means "unspecified"; EndOfTime is the
//     +infinity sentinel for both time axes.
package model
