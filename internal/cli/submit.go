package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/engine"
	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/txfile"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Timeout time.Duration // overrides await_timeout
	NoWait  bool
}

// SubmitResult is the outcome of one submitted file.
type SubmitResult struct {
	File    string `json:"file"`
	TxID    int64  `json:"tx_id"`
	TxTime  string `json:"tx_time"`
	Outcome string `json:"outcome"` // committed | aborted | pending
}

// Submission outcomes.
const (
	outcomeCommitted = "committed"
	outcomeAborted   = "aborted"
	outcomePending   = "pending"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <file>...",
		Short: "Submit transactions from YAML, JSON or CUE files",
		Long: `Submit one transaction per file, in argument order.

Each transaction is durably reserved, then awaited until it is indexed and
reported as committed or aborted.

Exit codes:
  0 - All transactions committed
  1 - One or more transactions aborted (a match predicate failed)
  2 - Command error (malformed file, database error, timeout, etc.)

Examples:
  tempodb submit --db ./tempodb.db tx.yaml
  tempodb submit --db ./tempodb.db a.cue b.json --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "how long to wait for indexing (default: config await_timeout)")
	cmd.Flags().BoolVar(&opts.NoWait, "no-wait", false, "return after reservation without waiting for the outcome")

	return cmd
}

func runSubmit(opts *SubmitOptions, files []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	// Load every file first so a bad file submits nothing.
	batches := make([][]model.Operation, len(files))
	for i, file := range files {
		ops, err := txfile.Load(file)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load transaction", err)
		}
		batches[i] = ops
	}

	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}

	results, submitErr := submitAll(ctx, sess.engine, opts, files, batches)
	if err := sess.Close(); err != nil && submitErr == nil {
		submitErr = WrapExitError(ExitCommandError, "failed to close database", err)
	}
	if submitErr != nil {
		return submitErr
	}

	aborted := 0
	for _, r := range results {
		if r.Outcome == outcomeAborted {
			aborted++
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	err = formatter.Render(results, func(w io.Writer) error {
		for _, r := range results {
			fmt.Fprintf(w, "tx %d %s at %s (%s)\n", r.TxID, r.Outcome, r.TxTime, r.File)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if aborted > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d transaction(s) aborted", aborted))
	}
	return nil
}

func submitAll(ctx context.Context, eng *engine.Engine, opts *SubmitOptions, files []string, batches [][]model.Operation) ([]SubmitResult, error) {
	results := make([]SubmitResult, 0, len(files))
	for i, ops := range batches {
		inst, err := eng.Submit(ctx, ops)
		if model.IsMalformed(err) {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("malformed transaction in %s", files[i]), err)
		}
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to submit %s", files[i]), err)
		}

		result := SubmitResult{
			File:    files[i],
			TxID:    inst.TxID,
			TxTime:  model.FormatTime(inst.TxTime),
			Outcome: outcomePending,
		}
		if !opts.NoWait {
			committed, err := awaitOutcome(ctx, eng, inst, opts.Timeout)
			if err != nil {
				return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to await %s", files[i]), err)
			}
			result.Outcome = outcomeAborted
			if committed {
				result.Outcome = outcomeCommitted
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// awaitOutcome waits for inst to be indexed and reads its log record.
func awaitOutcome(ctx context.Context, eng *engine.Engine, inst model.TransactionInstant, timeout time.Duration) (bool, error) {
	if err := eng.AwaitIndexed(ctx, inst, timeout); err != nil {
		return false, err
	}

	cur, err := eng.OpenLogCursor(ctx, inst.TxID-1, false)
	if err != nil {
		return false, err
	}
	defer cur.Close()

	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return false, err
		}
		return false, fmt.Errorf("no log record for %s", inst)
	}
	return cur.Record().Committed, nil
}

// commandContext returns the command's context, or Background in tests
// that execute commands directly.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
