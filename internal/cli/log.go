package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/model"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	After      int64
	Operations bool
	Limit      int
}

// OperationView is the printable form of one logged operation.
type OperationView struct {
	Op        string         `json:"op"`
	ID        string         `json:"id"`
	DocHash   string         `json:"doc_hash,omitempty"`
	Evicted   bool           `json:"evicted,omitempty"` // put body no longer stored
	Attrs     map[string]any `json:"attrs,omitempty"`
	ValidFrom string         `json:"valid_from,omitempty"`
	ValidTo   string         `json:"valid_to,omitempty"`
	ValidTime string         `json:"valid_time,omitempty"`
}

// RecordView is the printable form of one log record.
type RecordView struct {
	TxID       int64           `json:"tx_id"`
	TxTime     string          `json:"tx_time"`
	Committed  bool            `json:"committed"`
	Operations []OperationView `json:"operations,omitempty"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Read the transaction log in id order",
		Long: `Read transaction records with an id greater than --after.

Without --ops every record is listed, aborted ones included. With --ops
only committed records are listed, each with its operations; put bodies
removed by eviction are reported as evicted.

Examples:
  tempodb log --db ./tempodb.db
  tempodb log --after 10 --ops --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.After, "after", 0, "list records with a tx id greater than this")
	cmd.Flags().BoolVar(&opts.Operations, "ops", false, "include operations (committed records only)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = all)")

	return cmd
}

func runLog(opts *LogOptions, cmd *cobra.Command) error {
	if opts.After < 0 {
		return NewExitError(ExitCommandError, "--after must not be negative")
	}

	ctx := commandContext(cmd)
	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer sess.Close()

	cur, err := sess.engine.OpenLogCursor(ctx, opts.After, opts.Operations)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open log cursor", err)
	}
	defer cur.Close()

	records := []RecordView{}
	for cur.Next() {
		records = append(records, recordView(cur.Record()))
		if opts.Limit > 0 && len(records) >= opts.Limit {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Render(records, func(w io.Writer) error {
		for _, rec := range records {
			outcome := outcomeAborted
			if rec.Committed {
				outcome = outcomeCommitted
			}
			fmt.Fprintf(w, "tx %d %s %s\n", rec.TxID, rec.TxTime, outcome)
			for _, op := range rec.Operations {
				fmt.Fprintf(w, "  %s\n", formatOperation(op))
			}
		}
		return nil
	})
}

func recordView(rec model.TransactionRecord) RecordView {
	view := RecordView{
		TxID:      rec.Instant.TxID,
		TxTime:    model.FormatTime(rec.Instant.TxTime),
		Committed: rec.Committed,
	}
	for _, op := range rec.Operations {
		view.Operations = append(view.Operations, operationView(op))
	}
	return view
}

func operationView(op model.Operation) OperationView {
	view := OperationView{Op: string(op.Kind()), ID: op.EntityID()}
	switch o := op.(type) {
	case model.Put:
		view.DocHash = o.DocHash
		if o.Document.Attrs == nil {
			view.Evicted = true
		} else {
			view.Attrs = model.ToAny(o.Document.Attrs).(map[string]any)
		}
		view.ValidFrom = formatOptional(o.ValidFrom)
		view.ValidTo = formatOptional(o.ValidTo)
	case model.Delete:
		view.ValidFrom = formatOptional(o.ValidFrom)
		view.ValidTo = formatOptional(o.ValidTo)
	case model.Match:
		view.DocHash = o.ExpectedHash
		if o.Expected != nil && o.Expected.Attrs != nil {
			view.Attrs = model.ToAny(o.Expected.Attrs).(map[string]any)
		}
		view.ValidTime = formatOptional(o.ValidTime)
	case model.MatchNotExists:
		view.ValidTime = formatOptional(o.ValidTime)
	}
	return view
}

func formatOperation(op OperationView) string {
	s := fmt.Sprintf("%s %s", op.Op, op.ID)
	switch {
	case op.Evicted:
		s += " <evicted>"
	case op.DocHash != "":
		s += " " + op.DocHash
	}
	if op.ValidFrom != "" {
		s += " from " + op.ValidFrom
	}
	if op.ValidTo != "" {
		s += " to " + op.ValidTo
	}
	if op.ValidTime != "" {
		s += " at " + op.ValidTime
	}
	return s
}

// formatOptional renders t, or "" when the operation left it defaulted.
func formatOptional(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return model.FormatTime(t)
}
