package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tempodb/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // defaults to <scenarios-dir>/../golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run YAML scenarios against a fresh in-memory store each.

Every scenario's steps are submitted in order, its assertions evaluated, and
its trace compared with the golden file of the same name when one exists.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  tempodb test ./testdata/scenarios
  tempodb test ./testdata/scenarios --filter "match-*"
  tempodb test ./testdata/scenarios --update
  tempodb test ./testdata/scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "directory holding golden traces (default: ../golden next to the scenarios)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, goldenDir, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile, goldenDir string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	fail := func(name string, errs ...string) ScenarioResult {
		if opts.Format != "json" {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	trace, err := harness.MarshalTrace(scenario.Name, result)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to marshal trace: %v", err))
	}
	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")

	if opts.Update {
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to create golden directory: %v", err))
		}
		if err := os.WriteFile(goldenPath, trace, 0644); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to write golden file: %v", err))
		}
		if !result.Pass {
			return fail(scenario.Name, result.Errors...)
		}
		if opts.Format != "json" {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", scenario.Name)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	errs := append([]string(nil), result.Errors...)
	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file: assertions only.
	case err != nil:
		errs = append(errs, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(golden, trace):
		errs = append(errs, "trace does not match golden file (run with --update to regenerate)")
	}

	if len(errs) > 0 {
		return fail(scenario.Name, errs...)
	}
	if opts.Format != "json" {
		fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}
	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
