package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cmaprun/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update   bool   // regenerate golden files
	Filter   string // scenario filter (glob pattern)
	Database string // record runs in this ledger
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
		Short: "Run every scenario in a directory",
		Long: `Run all scenario files (.yml, .yaml, .json) found under a directory.

Each scenario is checked against its declared events and error. When
golden/<name>.golden exists next to a scenario file, the canonical event
log must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad config, database error)

Examples:
  cmaprun test ./scenarios
  cmaprun test ./scenarios --filter "pool-checkout-*"
  cmaprun test ./scenarios --update
  cmaprun test ./scenarios --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	w := cmd.OutOrStdout()

	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		msg := fmt.Sprintf("scenarios directory not found: %s", dir)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		_ = formatter.Error(ErrCodeScanError, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}

	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}

	runner, err := newScenarioRunner(opts.RootOptions, opts.Database, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer runner.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	for _, file := range files {
		formatter.VerboseLog("running %s", file)

		res, err := testScenario(ctx, runner, file, opts.Update)
		if err != nil {
			return err
		}
		result.Scenarios = append(result.Scenarios, res)
		if res.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		if !formatter.JSON() {
			printScenario(w, res)
		}
	}

	if formatter.JSON() {
		if result.Failed > 0 {
			msg := fmt.Sprintf("%d scenario(s) failed", result.Failed)
			_ = formatter.Failure(result, ErrCodeGeneric, msg)
			return NewExitError(ExitFailure, msg)
		}
		return formatter.Success(result)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

// testScenario runs one file for the test command. Load, setup and golden
// problems fail the scenario; only a ledger write error aborts the command.
func testScenario(ctx context.Context, runner *scenarioRunner, file string, update bool) (ScenarioResult, error) {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   scenarioName(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}, nil
	}

	res, result, err := runner.execute(ctx, file, scenario)
	if err != nil && result == nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res, nil
	}
	if err != nil {
		return res, WrapExitError(ExitCommandError, "failed to record run", err)
	}

	golden, err := checkGolden(file, result, update)
	if err != nil {
		res.Pass = false
		res.Errors = append(res.Errors, err.Error())
		return res, nil
	}
	res.Golden = golden
	if golden == "mismatch" {
		res.Pass = false
		res.Errors = append(res.Errors, "event log does not match golden file (run with --update to regenerate)")
	}
	return res, nil
}
