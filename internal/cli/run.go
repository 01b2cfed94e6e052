package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cmaprun/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run a single scenario",
		Long: `Run one scenario file and report whether the pool produced the expected
events and error.

Exit codes:
  0 - Scenario passed
  1 - Scenario failed
  2 - Command error (unreadable or invalid file, bad config, database error)

Examples:
  cmaprun run ./scenarios/pool-checkout-error-closed.yml
  cmaprun run ./scenarios/wait-queue-timeout.yml --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite database")

	return cmd
}

func runScenarioFile(opts *RunOptions, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	runner, err := newScenarioRunner(opts.RootOptions, opts.Database, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer runner.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), map[string]string{"file": file})
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	res, result, err := runner.execute(ctx, file, scenario)
	if err != nil {
		code := ErrCodeLedger
		if result == nil {
			code = ErrCodeExecution
		}
		_ = formatter.Error(code, err.Error(), map[string]string{"file": file})
		return WrapExitError(ExitCommandError, "scenario did not complete", err)
	}

	if formatter.JSON() {
		if res.Pass {
			return formatter.Success(res)
		}
		_ = formatter.Failure(res, ErrCodeGeneric, "scenario failed")
		return NewExitError(ExitFailure, "scenario failed")
	}

	printScenario(cmd.OutOrStdout(), res)
	if !res.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}

// signalContext derives a context from the command's that is canceled on
// SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
