package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cmaprun/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// HistoryEntry is one ledger row as printed by history.
type HistoryEntry struct {
	ID         string   `json:"id"`
	Scenario   string   `json:"scenario"`
	File       string   `json:"file"`
	Pass       bool     `json:"pass"`
	Errors     []string `json:"errors,omitempty"`
	StartedAt  string   `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded scenario runs",
		Long: `List runs recorded with --db by the run and test commands, newest first.

Example:
  cmaprun history --db ./runs.db --limit 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 for all)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Opening would create an empty ledger; a typo in --db should not.
	if _, err := os.Stat(opts.Database); err != nil {
		msg := fmt.Sprintf("database not found: %s", opts.Database)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if err := st.Check(cmd.Context()); err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "ledger check failed", err)
	}

	runs, err := st.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		_ = formatter.Error(ErrCodeLedger, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	entries := make([]HistoryEntry, len(runs))
	for i, r := range runs {
		entries[i] = HistoryEntry{
			ID:         r.ID,
			Scenario:   r.Scenario,
			File:       r.File,
			Pass:       r.Pass,
			Errors:     r.Errors,
			StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
			DurationMS: r.Duration.Milliseconds(),
		}
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"runs": entries})
	}

	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCENARIO\tRESULT\tSTARTED\tDURATION")
	for _, e := range entries {
		verdict := "pass"
		if !e.Pass {
			verdict = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\n", e.ID, e.Scenario, verdict, e.StartedAt, e.DurationMS)
	}
	return tw.Flush()
}
