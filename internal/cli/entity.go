package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/engine"
	"github.com/roach88/tempodb/internal/model"
)

// SnapshotFlags pin the snapshot used by read commands.
type SnapshotFlags struct {
	ValidTime string
	TxTime    string
	Timeout   time.Duration
}

func (f *SnapshotFlags) register(cmd *cobra.Command, withValidTime bool) {
	if withValidTime {
		cmd.Flags().StringVar(&f.ValidTime, "valid-time", "", "valid time to resolve at, RFC 3339 (default: now)")
	}
	cmd.Flags().StringVar(&f.TxTime, "tx-time", "", "transaction time to read as of, RFC 3339 (default: latest)")
	cmd.Flags().DurationVar(&f.Timeout, "timeout", 0, "how long to wait for a future tx time (default: config await_timeout)")
}

func (f *SnapshotFlags) options() (engine.SnapshotOptions, error) {
	opts := engine.SnapshotOptions{Timeout: f.Timeout}
	if f.ValidTime != "" {
		t, err := model.ParseTime(f.ValidTime)
		if err != nil {
			return opts, fmt.Errorf("--valid-time: %w", err)
		}
		opts.ValidTime = t
	}
	if f.TxTime != "" {
		t, err := model.ParseTime(f.TxTime)
		if err != nil {
			return opts, fmt.Errorf("--tx-time: %w", err)
		}
		opts.TxTime = t
	}
	return opts, nil
}

// EntityResult is the output of the entity command.
type EntityResult struct {
	ID        string         `json:"id"`
	Found     bool           `json:"found"`
	ValidTime string         `json:"valid_time"`
	TxTime    string         `json:"tx_time"`
	BasisTxID int64          `json:"basis_tx_id"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// NewEntityCommand creates the entity command.
func NewEntityCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &SnapshotFlags{}

	cmd := &cobra.Command{
		Use:   "entity <id>",
		Short: "Resolve an entity at a (valid time, transaction time) pair",
		Long: `Resolve an entity as it was known at --tx-time, for the instant --valid-time.

Deleted, evicted and unknown entities resolve as not found.

Examples:
  tempodb entity pablo --db ./tempodb.db
  tempodb entity pablo --valid-time 2000-01-01T02:00:00Z --tx-time 2000-02-01T00:00:00Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntity(rootOpts, flags, args[0], cmd)
		},
	}
	flags.register(cmd, true)

	return cmd
}

func runEntity(opts *RootOptions, flags *SnapshotFlags, id string, cmd *cobra.Command) error {
	snapOpts, err := flags.options()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	ctx := commandContext(cmd)
	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := sess.engine.Snapshot(ctx, snapOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open snapshot", err)
	}
	doc, found, err := snap.Entity(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve entity", err)
	}

	result := EntityResult{
		ID:        id,
		Found:     found,
		ValidTime: model.FormatTime(snap.ValidTime()),
		TxTime:    model.FormatTime(snap.TxTime()),
		BasisTxID: snap.Basis().TxID,
	}
	if found {
		result.Attrs = model.ToAny(doc.Attrs).(map[string]any)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Render(result, func(w io.Writer) error {
		if !found {
			fmt.Fprintf(w, "%s: not found (valid time %s, tx %d)\n", id, result.ValidTime, result.BasisTxID)
			return nil
		}
		body, err := model.MarshalCanonical(doc.Attrs)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", id, body)
		return nil
	})
}

// VersionView is one row of the history command.
type VersionView struct {
	ValidFrom string         `json:"valid_from"`
	ValidTo   string         `json:"valid_to,omitempty"` // empty when open-ended
	TxID      int64          `json:"tx_id"`
	TxTime    string         `json:"tx_time"`
	Deleted   bool           `json:"deleted,omitempty"`
	Evicted   bool           `json:"evicted,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// HistoryResult is the output of the history command.
type HistoryResult struct {
	ID        string        `json:"id"`
	TxTime    string        `json:"tx_time"`
	BasisTxID int64         `json:"basis_tx_id"`
	Versions  []VersionView `json:"versions"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &SnapshotFlags{}

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List the valid-time timeline of an entity",
		Long: `List every version of an entity known at --tx-time, ordered by valid time.

Examples:
  tempodb history pablo --db ./tempodb.db
  tempodb history pablo --tx-time 2000-02-01T00:00:00Z --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, flags, args[0], cmd)
		},
	}
	flags.register(cmd, false)

	return cmd
}

func runHistory(opts *RootOptions, flags *SnapshotFlags, id string, cmd *cobra.Command) error {
	snapOpts, err := flags.options()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	ctx := commandContext(cmd)
	sess, err := openSession(ctx, opts.Config)
	if err != nil {
		return err
	}
	defer sess.Close()

	snap, err := sess.engine.Snapshot(ctx, snapOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open snapshot", err)
	}
	versions, err := snap.Timeline(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read timeline", err)
	}

	result := HistoryResult{
		ID:        id,
		TxTime:    model.FormatTime(snap.TxTime()),
		BasisTxID: snap.Basis().TxID,
		Versions:  make([]VersionView, 0, len(versions)),
	}
	for _, v := range versions {
		view := VersionView{
			ValidFrom: model.FormatTime(v.ValidFrom),
			TxID:      v.TxFrom.TxID,
			TxTime:    model.FormatTime(v.TxFrom.TxTime),
			Deleted:   v.Deleted(),
		}
		if !v.ValidTo.Equal(model.EndOfTime) {
			view.ValidTo = model.FormatTime(v.ValidTo)
		}
		switch {
		case v.Document != nil:
			view.Attrs = model.ToAny(v.Document.Attrs).(map[string]any)
		case !v.Deleted():
			view.Evicted = true
		}
		result.Versions = append(result.Versions, view)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Render(result, func(w io.Writer) error {
		return printHistory(w, result)
	})
}

func printHistory(w io.Writer, result HistoryResult) error {
	id := result.ID
	if len(result.Versions) == 0 {
		fmt.Fprintf(w, "%s: no versions\n", id)
		return nil
	}
	for _, v := range result.Versions {
		to := v.ValidTo
		if to == "" {
			to = "..."
		}
		state := "deleted"
		switch {
		case v.Evicted:
			state = "evicted"
		case v.Attrs != nil:
			body, err := model.MarshalCanonical(v.Attrs)
			if err != nil {
				return err
			}
			state = string(body)
		}
		fmt.Fprintf(w, "[%s, %s) tx %d: %s\n", v.ValidFrom, to, v.TxID, state)
	}
	return nil
}
