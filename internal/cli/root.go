package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides the config file

	// Config is loaded before any subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tempodb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tempodb",
		Short: "tempodb - bitemporal document store",
		Long:  "A bitemporal document store: every document version is addressed by valid time and transaction time.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewEntityCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// load reads the config file, applies flag overrides and installs the
// default logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	o.Config = cfg

	level, err := cfg.SlogLevel()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
