package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cmaprun/internal/harness"
)

// FileValidation is the validation outcome of one scenario file.
type FileValidation struct {
	File    string `json:"file"`
	Name    string `json:"name,omitempty"`
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file>...",
		Short: "Check scenario files without running them",
		Long: `Parse and validate scenario files without creating a pool.

Checks the scenario schema, operation names and arguments, thread usage,
event and error type names, and pool option consistency.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("validating %s", file)

		fv := FileValidation{File: file, Valid: true}
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			fv.Valid = false
			fv.Code = loadErrorCode(err)
			fv.Message = err.Error()
			result.Valid = false
		} else {
			fv.Name = scenario.Name
		}
		result.Files = append(result.Files, fv)
	}

	invalid := 0
	for _, fv := range result.Files {
		if !fv.Valid {
			invalid++
		}
	}

	if formatter.JSON() {
		if invalid > 0 {
			msg := fmt.Sprintf("%d of %d file(s) invalid", invalid, len(files))
			_ = formatter.Failure(result, ErrCodeInvalidScenario, msg)
			return NewExitError(ExitFailure, msg)
		}
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(w, "✓ %s (%s)\n", fv.File, fv.Name)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n  [%s] %s\n", fv.File, fv.Code, indent(fv.Message))
	}
	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d file(s) invalid", invalid, len(files)))
	}
	return nil
}
