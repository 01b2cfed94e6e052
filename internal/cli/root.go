package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/harness"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a harness config file; empty uses the defaults

	// IDs generates ledger run IDs. Defaults to UUIDv7Generator; tests
	// replace it for predictable output.
	IDs engine.IDGenerator

	// Now stamps ledger runs. Defaults to time.Now.
	Now func() time.Time
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cmaprun CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cmaprun",
		Short: "cmaprun - connection pool scenario runner",
		Long: `Run declarative connection pool scenarios and verify the events they emit.

A scenario names pool options, a list of operations (optionally spread
across named threads) and the exact sequence of pool events those
operations must produce.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to harness config file (YAML)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig returns the harness config named by --config, or the defaults.
func (o *RootOptions) loadConfig() (harness.Config, error) {
	if o.Config == "" {
		return harness.DefaultConfig(), nil
	}
	cfg, err := harness.LoadConfig(o.Config)
	if err != nil {
		return harness.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the text logger commands hand to the executor: warnings
// by default, everything down to Debug with --verbose.
func (o *RootOptions) newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) idGenerator() engine.IDGenerator {
	if o.IDs != nil {
		return o.IDs
	}
	return engine.UUIDv7Generator{}
}

func (o *RootOptions) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
