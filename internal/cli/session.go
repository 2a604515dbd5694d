package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tempodb/internal/config"
	"github.com/roach88/tempodb/internal/docstore"
	"github.com/roach88/tempodb/internal/engine"
	"github.com/roach88/tempodb/internal/store"
)

// session is an open store with a running engine loop.
type session struct {
	store  *store.Store
	engine *engine.Engine

	cancel context.CancelFunc
	done   chan error
}

// openStore opens the log database with the configured document store.
func openStore(cfg *config.Config) (*store.Store, error) {
	var opts []store.Option
	var bolt *docstore.BoltDB
	if cfg.DocumentStore == config.DocumentStoreBolt {
		var err error
		bolt, err = docstore.OpenBoltDB(cfg.BoltPath, docstore.WithLogger(slog.Default()))
		if err != nil {
			return nil, err
		}
		opts = append(opts, store.WithDocumentStore(bolt))
	}

	st, err := store.Open(cfg.Database, opts...)
	if err != nil {
		if bolt != nil {
			bolt.Close()
		}
		return nil, err
	}
	return st, nil
}

// openSession opens the store, recovers the engine and starts its loop.
// Pending submissions from a previous process are resolved by the loop.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	eng, err := engine.Open(ctx, st, engine.WithAwaitTimeout(cfg.AwaitTimeout))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open engine", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{store: st, engine: eng, cancel: cancel, done: make(chan error, 1)}
	go func() {
		s.done <- eng.Run(runCtx)
	}()
	return s, nil
}

// Close drains the engine, stops its loop and closes the store.
func (s *session) Close() error {
	s.engine.Stop()
	runErr := <-s.done
	s.cancel()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if runErr != nil && runErr != context.Canceled {
		return fmt.Errorf("engine: %w", runErr)
	}
	return nil
}
