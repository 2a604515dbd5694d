package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/notify"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MetricsAddr string // overrides metrics_addr
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and serve metrics",
		Long: `Open the database, resolve any submissions left pending by a previous
process, and keep the single-writer loop running until interrupted.

Every indexed transaction is logged. When a metrics address is configured,
Prometheus metrics are served on /metrics.

Example:
  tempodb run --db ./tempodb.db
  tempodb run --config tempodb.yaml --metrics-addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address to serve /metrics on (overrides config)")

	return cmd
}

func runEngine(opts *RunOptions, cmd *cobra.Command) error {
	cfg := opts.Config
	if opts.MetricsAddr != "" {
		cfg.MetricsAddr = opts.MetricsAddr
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("opening database", "path", cfg.Database, "document_store", cfg.DocumentStore)
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	handle := sess.engine.Listen(notify.ListenerFunc(logIndexed), notify.Config{})
	defer handle.Close()

	if cfg.MetricsAddr != "" {
		_, stop, err := serveMetrics(cfg.MetricsAddr)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer stop()
	}

	slog.Info("engine started", "db", cfg.Database, "latest_indexed", sess.engine.LatestIndexed())
	fmt.Fprintln(cmd.OutOrStdout(), "Engine started.")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case <-ctx.Done():
	case err := <-sess.done:
		// Run only returns early on a log append failure.
		sess.done <- err
		if err != nil {
			return WrapExitError(ExitFailure, "engine error", err)
		}
	}

	slog.Info("engine stopped gracefully")
	return nil
}

func logIndexed(ctx context.Context, ev notify.Event) error {
	outcome := outcomeAborted
	if ev.Committed {
		outcome = outcomeCommitted
	}
	slog.Info("transaction indexed", "tx_id", ev.Instant.TxID, "tx_time", ev.Instant.TxTime, "outcome", outcome)
	return nil
}

// serveMetrics starts the Prometheus endpoint and returns its bound address
// and a function that shuts it down.
func serveMetrics(addr string) (net.Addr, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())

	return ln.Addr(), func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
