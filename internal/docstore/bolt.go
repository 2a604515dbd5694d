// Package docstore provides document body backends for the transaction log
// outside the log's own SQLite database.
package docstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/store"
)

var (
	// bucketBodies maps content address -> canonical document JSON.
	bucketBodies = []byte("bodies")

	// bucketByEntity maps uvarint(len(id)) + id + content address -> empty,
	// so an eviction finds every body of an entity with one prefix scan.
	bucketByEntity = []byte("bodies_by_entity")
)

// BoltDB implements store.DocumentStore using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	logger *slog.Logger
	noSync bool
}

var _ store.DocumentStore = (*BoltDB)(nil)

// BoltDBOption configures a BoltDB instance.
type BoltDBOption func(*BoltDB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) BoltDBOption {
	return func(b *BoltDB) {
		b.logger = logger
	}
}

// WithNoSync disables fsync per transaction. Tests only.
func WithNoSync(noSync bool) BoltDBOption {
	return func(b *BoltDB) {
		b.noSync = noSync
	}
}

// OpenBoltDB opens (creating if needed) a bbolt document store at path.
func OpenBoltDB(path string, opts ...BoltDBOption) (*BoltDB, error) {
	b := &BoltDB{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
		NoSync:  b.noSync,
	})
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	b.db = db

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBodies, bucketByEntity} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	b.logger.Debug("opened document store", "path", path, "noSync", b.noSync)
	return b, nil
}

// Commit stores put bodies and removes evicted entities in declaration order,
// all in one bbolt transaction.
func (b *BoltDB) Commit(_ context.Context, ops []model.Operation) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bodies := tx.Bucket(bucketBodies)
		byEntity := tx.Bucket(bucketByEntity)

		for _, op := range ops {
			switch o := op.(type) {
			case model.Put:
				body, err := o.Document.MarshalCanonical()
				if err != nil {
					return fmt.Errorf("encoding %s: %w", o.DocHash, err)
				}
				if err := bodies.Put([]byte(o.DocHash), body); err != nil {
					return fmt.Errorf("putting body %s: %w", o.DocHash, err)
				}
				if err := byEntity.Put(entityKey(o.Document.ID, o.DocHash), []byte{}); err != nil {
					return fmt.Errorf("indexing body %s: %w", o.DocHash, err)
				}
			case model.Evict:
				n, err := evictEntity(bodies, byEntity, o.ID)
				if err != nil {
					return err
				}
				b.logger.Debug("evicted bodies", "entity", o.ID, "count", n)
			}
		}
		return nil
	})
}

func evictEntity(bodies, byEntity *bbolt.Bucket, id string) (int, error) {
	prefix := entityKey(id, "")
	var keys [][]byte
	c := byEntity.Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		hash := k[len(prefix):]
		if err := bodies.Delete(hash); err != nil {
			return 0, fmt.Errorf("deleting body %s: %w", hash, err)
		}
		if err := byEntity.Delete(k); err != nil {
			return 0, fmt.Errorf("deleting index entry for %s: %w", hash, err)
		}
	}
	return len(keys), nil
}

// Document loads a body by content address.
func (b *BoltDB) Document(_ context.Context, hash string) (model.Document, bool, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		if val := tx.Bucket(bucketBodies).Get([]byte(hash)); val != nil {
			data = make([]byte, len(val))
			copy(data, val)
		}
		return nil
	})
	if err != nil {
		return model.Document{}, false, fmt.Errorf("reading body %s: %w", hash, err)
	}
	if data == nil {
		return model.Document{}, false, nil
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.Document{}, false, model.WrapError(model.ErrCodeLogCorruption, err, "document %s", hash)
	}
	if got, err := doc.Hash(); err != nil || got != hash {
		return model.Document{}, false, model.NewError(model.ErrCodeLogCorruption, "document %s: content address mismatch", hash)
	}
	return doc, true, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	if b.db == nil {
		return nil
	}
	b.logger.Debug("closing document store")
	return b.db.Close()
}

// entityKey length-prefixes id so that no id is a key prefix of another.
func entityKey(id, hash string) []byte {
	k := make([]byte, 0, binary.MaxVarintLen64+len(id)+len(hash))
	k = binary.AppendUvarint(k, uint64(len(id)))
	k = append(k, id...)
	return append(k, hash...)
}
