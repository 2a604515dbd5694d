package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tempodb/internal/model"
)

// DocumentStore holds immutable document bodies keyed by content address.
// Bodies are never rewritten; they are only added by committed puts and
// removed by evictions.
type DocumentStore interface {
	// Commit applies the document effects of a committed transaction in
	// declaration order: a Put stores its body, an Evict removes every body
	// of the entity. It must be idempotent.
	Commit(ctx context.Context, ops []model.Operation) error

	// Document loads a body by content address. A missing body (never
	// stored, or evicted) is reported as ok=false, not as an error.
	Document(ctx context.Context, hash string) (doc model.Document, ok bool, err error)

	// Close releases the backend.
	Close() error
}

// sqliteDocuments is the default DocumentStore, sharing the log database so
// body writes commit in the same SQLite transaction as the log record.
type sqliteDocuments struct {
	db *sql.DB
}

func (d *sqliteDocuments) Commit(ctx context.Context, ops []model.Operation) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit documents: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := commitDocumentsTx(ctx, tx, ops); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit documents: %w", err)
	}
	return nil
}

func commitDocumentsTx(ctx context.Context, tx *sql.Tx, ops []model.Operation) error {
	for _, op := range ops {
		switch o := op.(type) {
		case model.Put:
			body, err := o.Document.MarshalCanonical()
			if err != nil {
				return fmt.Errorf("commit documents: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (hash, entity_id, body)
				VALUES (?, ?, ?)
				ON CONFLICT(hash) DO NOTHING
			`, o.DocHash, o.Document.ID, string(body))
			if err != nil {
				return fmt.Errorf("commit documents: insert %s: %w", o.DocHash, err)
			}
		case model.Evict:
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE entity_id = ?`, o.ID); err != nil {
				return fmt.Errorf("commit documents: evict %q: %w", o.ID, err)
			}
		}
	}
	return nil
}

func (d *sqliteDocuments) Document(ctx context.Context, hash string) (model.Document, bool, error) {
	var body string
	err := d.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE hash = ?`, hash).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, false, nil
	}
	if err != nil {
		return model.Document{}, false, fmt.Errorf("read document %s: %w", hash, err)
	}
	doc, err := unmarshalDocument(body, hash)
	if err != nil {
		return model.Document{}, false, model.WrapError(model.ErrCodeLogCorruption, err, "document %s", hash)
	}
	return doc, true, nil
}

// Close is a no-op: the table shares the log's connection.
func (d *sqliteDocuments) Close() error {
	return nil
}
