package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tempodb/internal/model"
)

// Submission is a reserved transaction whose outcome has not been logged.
type Submission struct {
	Instant    model.TransactionInstant
	Operations []model.Operation
}

// Reserve allocates the next TransactionInstant and durably records the
// submission. ops must already be validated.
//
// The id is last+1; the time is now, clamped so it never goes below the
// previous reservation. Failure is a LOG_APPEND_FAILURE and consumes no id.
func (s *Store) Reserve(ctx context.Context, ops []model.Operation, now time.Time) (model.TransactionInstant, error) {
	payload, _, err := marshalOperations(ops)
	if err != nil {
		return model.TransactionInstant{}, model.WrapError(model.ErrCodeLogAppendFailure, err, "reserve")
	}
	bodies, err := marshalBodies(ops)
	if err != nil {
		return model.TransactionInstant{}, model.WrapError(model.ErrCodeLogAppendFailure, err, "reserve")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := model.TransactionInstant{
		TxID:   s.reserved.TxID + 1,
		TxTime: model.NormalizeTime(now),
	}
	if next.TxTime.Before(s.reserved.TxTime) {
		next.TxTime = s.reserved.TxTime
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (tx_id, tx_time, ops, bodies)
		VALUES (?, ?, ?, ?)
	`, next.TxID, model.FormatTime(next.TxTime), payload, bodies)
	if err != nil {
		e := model.WrapError(model.ErrCodeLogAppendFailure, err, "reserve")
		e.TxID = next.TxID
		return model.TransactionInstant{}, e
	}

	s.reserved = next
	return next, nil
}

// Append writes the outcome of a reserved submission to the transaction log
// and retires the submission. Committed records apply their document effects
// to the document store first; aborted records store no operations.
//
// Records must be appended in id order.
func (s *Store) Append(ctx context.Context, rec model.TransactionRecord) error {
	fail := func(err error, format string, args ...any) error {
		e := model.WrapError(model.ErrCodeLogAppendFailure, err, format, args...)
		e.TxID = rec.Instant.TxID
		return e
	}

	var payload, digest sql.NullString
	if rec.Committed {
		p, d, err := marshalOperations(rec.Operations)
		if err != nil {
			return fail(err, "append")
		}
		payload = sql.NullString{String: p, Valid: true}
		digest = sql.NullString{String: d, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Instant.TxID <= s.lastLogged.TxID {
		return fail(nil, "append %s: log already at tx %d", rec.Instant, s.lastLogged.TxID)
	}

	// Documents held outside SQLite are committed first. Commit is
	// idempotent, so a crash before the log row only repeats it.
	_, shared := s.docs.(*sqliteDocuments)
	if rec.Committed && !shared {
		if err := s.docs.Commit(ctx, rec.Operations); err != nil {
			return fail(err, "append %s: documents", rec.Instant)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(err, "append %s: begin tx", rec.Instant)
	}
	defer tx.Rollback()

	if rec.Committed && shared {
		if err := commitDocumentsTx(ctx, tx, rec.Operations); err != nil {
			return fail(err, "append %s", rec.Instant)
		}
	}

	committed := 0
	if rec.Committed {
		committed = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tx_log (tx_id, tx_time, committed, ops, ops_hash)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Instant.TxID, model.FormatTime(rec.Instant.TxTime), committed, payload, digest)
	if err != nil {
		return fail(err, "append %s", rec.Instant)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE tx_id = ?`, rec.Instant.TxID); err != nil {
		return fail(err, "append %s: retire submission", rec.Instant)
	}

	if err := tx.Commit(); err != nil {
		return fail(err, "append %s: commit", rec.Instant)
	}

	s.lastLogged = rec.Instant
	if s.reserved.TxID < rec.Instant.TxID {
		s.reserved = rec.Instant
	}
	return nil
}

// PendingSubmissions returns reserved submissions with no logged outcome,
// in id order, with their put bodies attached.
func (s *Store) PendingSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, tx_time, ops, bodies
		FROM submissions
		ORDER BY tx_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var (
			txID                int64
			txTime, ops, bodies string
		)
		if err := rows.Scan(&txID, &txTime, &ops, &bodies); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub, err := decodeSubmission(txID, txTime, ops, bodies)
		if err != nil {
			return nil, model.WrapError(model.ErrCodeLogCorruption, err, "submission %d", txID)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return subs, nil
}

func decodeSubmission(txID int64, txTime, payload, bodies string) (Submission, error) {
	at, err := model.ParseTime(txTime)
	if err != nil {
		return Submission{}, err
	}
	ops, err := unmarshalOperations(payload, "")
	if err != nil {
		return Submission{}, err
	}
	docs, err := unmarshalBodies(bodies)
	if err != nil {
		return Submission{}, err
	}
	attachBodies(ops, docs)
	for _, op := range ops {
		if put, ok := op.(model.Put); ok && put.Document.Attrs == nil {
			return Submission{}, fmt.Errorf("missing body %s for %q", put.DocHash, put.Document.ID)
		}
	}
	return Submission{
		Instant:    model.TransactionInstant{TxID: txID, TxTime: at},
		Operations: ops,
	}, nil
}

// LastInstant returns the highest reserved instant, logged or pending.
func (s *Store) LastInstant() model.TransactionInstant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved
}

// LastLogged returns the instant of the last record in the transaction log.
func (s *Store) LastLogged() model.TransactionInstant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLogged
}

// loadInstants reads the reservation and log high-water marks.
func (s *Store) loadInstants(ctx context.Context) error {
	var err error
	s.lastLogged, err = s.maxInstant(ctx, "tx_log")
	if err != nil {
		return err
	}
	pending, err := s.maxInstant(ctx, "submissions")
	if err != nil {
		return err
	}
	s.reserved = s.lastLogged
	if pending.TxID > s.reserved.TxID {
		s.reserved = pending
	}
	return nil
}

func (s *Store) maxInstant(ctx context.Context, table string) (model.TransactionInstant, error) {
	var (
		txID   sql.NullInt64
		txTime sql.NullString
	)
	query := fmt.Sprintf(`SELECT tx_id, tx_time FROM %s ORDER BY tx_id DESC LIMIT 1`, table)
	err := s.db.QueryRowContext(ctx, query).Scan(&txID, &txTime)
	if err == sql.ErrNoRows {
		return model.TransactionInstant{}, nil
	}
	if err != nil {
		return model.TransactionInstant{}, fmt.Errorf("read last instant from %s: %w", table, err)
	}
	at, err := model.ParseTime(txTime.String)
	if err != nil {
		return model.TransactionInstant{}, model.WrapError(model.ErrCodeLogCorruption, err, "%s tx %d", table, txID.Int64)
	}
	return model.TransactionInstant{TxID: txID.Int64, TxTime: at}, nil
}
