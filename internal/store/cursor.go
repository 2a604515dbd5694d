package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"github.com/roach88/tempodb/internal/model"
)

// cursorPageSize bounds how many log rows a cursor reads per query. Pages
// are read eagerly and the rows released, so an open cursor never pins the
// single SQLite connection the writer needs.
const cursorPageSize = 256

// Cursor is a lazy, closable sequence of transaction records in id order.
//
// Usage:
//
//	cur, err := s.OpenCursor(ctx, after, true)
//	if err != nil { ... }
//	defer cur.Close()
//	for cur.Next() {
//		rec := cur.Record()
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	store          *Store
	ctx            context.Context
	after          int64
	withOperations bool

	page   []model.TransactionRecord
	rec    model.TransactionRecord
	done   bool
	err    error
	closed atomic.Bool
}

// OpenCursor returns a cursor over records strictly after afterTxID.
//
// With withOperations, committed records carry their operations (put bodies
// attached when still present in the document store) and aborted records
// are skipped. Without it, every record is produced, operations omitted,
// aborted ones with Committed=false.
func (s *Store) OpenCursor(ctx context.Context, afterTxID int64, withOperations bool) (*Cursor, error) {
	if afterTxID < 0 {
		return nil, fmt.Errorf("open cursor: negative tx id %d", afterTxID)
	}
	return &Cursor{
		store:          s,
		ctx:            ctx,
		after:          afterTxID,
		withOperations: withOperations,
	}, nil
}

// Next advances to the next record. It returns false at the end of the log,
// on error, or once the cursor is closed.
func (c *Cursor) Next() bool {
	if c.closed.Load() || c.err != nil {
		return false
	}
	if len(c.page) == 0 {
		if c.done {
			return false
		}
		if err := c.fetch(); err != nil {
			c.err = err
			return false
		}
		if len(c.page) == 0 {
			c.done = true
			return false
		}
	}
	c.rec, c.page = c.page[0], c.page[1:]
	return true
}

// Record returns the record at the current position.
func (c *Cursor) Record() model.TransactionRecord {
	return c.rec
}

// Err returns the error that stopped iteration, if any. Undecodable records
// are LOG_CORRUPTION errors.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the cursor. Closing twice is a DOUBLE_CLOSE error.
func (c *Cursor) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return model.NewError(model.ErrCodeDoubleClose, "cursor already closed")
	}
	c.page = nil
	return nil
}

func (c *Cursor) fetch() error {
	query := `
		SELECT tx_id, tx_time, committed, ops, ops_hash
		FROM tx_log
		WHERE tx_id > ?
		ORDER BY tx_id ASC
		LIMIT ?
	`
	if c.withOperations {
		query = `
		SELECT tx_id, tx_time, committed, ops, ops_hash
		FROM tx_log
		WHERE tx_id > ? AND committed = 1
		ORDER BY tx_id ASC
		LIMIT ?
	`
	}

	rows, err := c.store.db.QueryContext(c.ctx, query, c.after, cursorPageSize)
	if err != nil {
		return fmt.Errorf("query tx_log: %w", err)
	}
	defer rows.Close()

	page := make([]model.TransactionRecord, 0, cursorPageSize)
	for rows.Next() {
		var (
			txID      int64
			txTime    string
			committed bool
			ops, hash sql.NullString
		)
		if err := rows.Scan(&txID, &txTime, &committed, &ops, &hash); err != nil {
			return fmt.Errorf("scan tx_log: %w", err)
		}
		rec, err := c.decode(txID, txTime, committed, ops, hash)
		if err != nil {
			return model.WrapError(model.ErrCodeLogCorruption, err, "tx_log record %d", txID)
		}
		page = append(page, rec)
		c.after = txID
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tx_log: %w", err)
	}
	rows.Close()

	if c.withOperations {
		for i := range page {
			if err := c.loadBodies(page[i].Operations); err != nil {
				return err
			}
		}
	}
	if len(page) < cursorPageSize {
		c.done = true
	}
	c.page = page
	return nil
}

func (c *Cursor) decode(txID int64, txTime string, committed bool, ops, hash sql.NullString) (model.TransactionRecord, error) {
	at, err := model.ParseTime(txTime)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	rec := model.TransactionRecord{
		Instant:   model.TransactionInstant{TxID: txID, TxTime: at},
		Committed: committed,
	}
	if !committed && ops.Valid {
		return model.TransactionRecord{}, fmt.Errorf("aborted record carries operations")
	}
	if committed && !ops.Valid {
		return model.TransactionRecord{}, fmt.Errorf("committed record without operations")
	}
	if c.withOperations {
		rec.Operations, err = unmarshalOperations(ops.String, hash.String)
		if err != nil {
			return model.TransactionRecord{}, err
		}
	}
	return rec, nil
}

func (c *Cursor) loadBodies(ops []model.Operation) error {
	for i, op := range ops {
		put, ok := op.(model.Put)
		if !ok {
			continue
		}
		doc, found, err := c.store.docs.Document(c.ctx, put.DocHash)
		if err != nil {
			return err
		}
		if found {
			put.Document = doc
			ops[i] = put
		}
	}
	return nil
}
