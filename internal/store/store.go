package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tempodb/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added idx_documents_entity for entity eviction
const currentSchemaVersion = 1

// Store provides durable storage for the transaction log.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sql.DB
	docs   DocumentStore
	closed atomic.Bool

	// mu serializes Reserve and Append so instants are allocated and logged
	// in a single total order.
	mu         sync.Mutex
	reserved   model.TransactionInstant
	lastLogged model.TransactionInstant
}

// Option configures a Store.
type Option func(*Store)

// WithDocumentStore replaces the built-in SQLite document table with ds.
// The store takes ownership and closes ds on Close.
func WithDocumentStore(ds DocumentStore) Option {
	return func(s *Store) {
		s.docs = ds
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode (a reservation is durable once Reserve returns)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	if s.docs == nil {
		s.docs = &sqliteDocuments{db: db}
	}

	if err := s.loadInstants(context.Background()); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the document store and the database connection.
// Closing more than once is a no-op.
func (s *Store) Close() error {
	if s.db == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var docErr error
	if s.docs != nil {
		docErr = s.docs.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return docErr
}

// Documents returns the document store holding bodies referenced by the log.
func (s *Store) Documents() DocumentStore {
	return s.docs
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the entity index on documents for databases created
// before eviction deleted bodies by entity.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_entity
		ON documents(entity_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
