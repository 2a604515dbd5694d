package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/txfile"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// FileValidation is the validation outcome of one transaction file.
type FileValidation struct {
	File       string `json:"file"`
	Valid      bool   `json:"valid"`
	Operations int    `json:"operations"`
	Error      string `json:"error,omitempty"`
}

// ValidateResult holds the overall validation result.
type ValidateResult struct {
	Files   []FileValidation `json:"files"`
	Invalid int              `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate transaction files without submitting them",
		Long: `Parse transaction files and check every operation.

With --verbose, prints each file's operations in canonical form.

Exit codes:
  0 - All files are valid
  1 - One or more files are invalid

Examples:
  tempodb validate tx.yaml
  tempodb validate ./txs/*.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidateResult{Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		v := validateFile(file, formatter)
		if !v.Valid {
			result.Invalid++
		}
		result.Files = append(result.Files, v)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, v := range result.Files {
			if v.Valid {
				fmt.Fprintf(w, "✓ %s (%d operations)\n", v.File, v.Operations)
			} else {
				fmt.Fprintf(w, "✗ %s: %s\n", v.File, v.Error)
			}
		}
	}

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", result.Invalid))
	}
	return nil
}

func validateFile(file string, formatter *OutputFormatter) FileValidation {
	ops, err := txfile.Load(file)
	if err != nil {
		return FileValidation{File: file, Error: err.Error()}
	}
	if _, err := model.ValidateOperations(ops); err != nil {
		return FileValidation{File: file, Operations: len(ops), Error: err.Error()}
	}

	if canonical, err := txfile.Marshal(ops); err == nil {
		formatter.VerboseLog("%s: %s", file, canonical)
	}
	return FileValidation{File: file, Valid: true, Operations: len(ops)}
}
