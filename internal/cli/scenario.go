package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/cmaprun/internal/engine"
	"github.com/roach88/cmaprun/internal/harness"
	"github.com/roach88/cmaprun/internal/store"
)

// ScenarioResult is the per-scenario outcome reported by run and test.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Error  string   `json:"error,omitempty"`  // error raised by the operations
	Errors []string `json:"errors,omitempty"` // check and teardown failures
	Events int      `json:"events"`
	RunID  string   `json:"run_id,omitempty"`
	Golden string   `json:"golden,omitempty"` // "match", "updated" or "mismatch"
}

// scenarioRunner loads, executes and optionally records scenario files.
type scenarioRunner struct {
	opts   *RootOptions
	exec   *harness.Executor
	ledger *store.Store
	logger *slog.Logger
}

// newScenarioRunner builds a runner from the global flags. dbPath may be
// empty, in which case nothing is recorded. The caller must call close.
func newScenarioRunner(opts *RootOptions, dbPath string, logOut io.Writer) (*scenarioRunner, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}

	logger := opts.newLogger(logOut)
	r := &scenarioRunner{
		opts:   opts,
		exec:   harness.NewExecutor(cfg, harness.WithLogger(logger)),
		logger: logger,
	}

	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		r.ledger = st
		logger.Debug("recording runs", "db", dbPath)
	}
	return r, nil
}

func (r *scenarioRunner) close() {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.Close(); err != nil {
		r.logger.Error("error closing database", "error", err)
	}
}

// execute runs a loaded scenario and records it when a ledger is open. The
// error is non-nil when the scenario could not be set up (result is nil) or
// when it ran but could not be recorded; check failures are reported on the
// returned ScenarioResult.
func (r *scenarioRunner) execute(ctx context.Context, file string, scenario *harness.Scenario) (ScenarioResult, *harness.Result, error) {
	started := r.opts.now()
	result, err := r.exec.Run(ctx, scenario)
	if err != nil {
		return ScenarioResult{Name: scenario.Name, File: file}, nil, err
	}
	duration := r.opts.now().Sub(started)

	sr := ScenarioResult{
		Name:   result.Scenario,
		File:   file,
		Pass:   result.Pass,
		Error:  result.Error,
		Errors: result.Errors,
		Events: len(result.Events),
	}

	if r.ledger != nil {
		id := r.opts.idGenerator().NewID()
		run := store.NewRun(id, file, result, started, duration)
		if err := r.ledger.WriteRun(ctx, run); err != nil {
			return sr, result, fmt.Errorf("failed to record run: %w", err)
		}
		sr.RunID = id
	}
	return sr, result, nil
}

// loadErrorCode classifies a scenario load failure.
func loadErrorCode(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case engine.IsUnsupportedOperation(err):
		return ErrCodeUnsupportedOperation
	default:
		return ErrCodeInvalidScenario
	}
}

// scenarioName is the name a scenario file gets when it does not set one.
func scenarioName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isScenarioFile reports whether path has a scenario extension.
func isScenarioFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// findScenarioFiles walks dir for scenario files, skipping golden
// directories. filter is a glob matched against the file name without
// extension.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == goldenDir && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isScenarioFile(path) {
			return nil
		}
		if filter != "" {
			if matched, _ := filepath.Match(filter, scenarioName(path)); !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

const goldenDir = "golden"

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile, name string) string {
	return filepath.Join(filepath.Dir(scenarioFile), goldenDir, name+".golden")
}

// checkGolden compares the run snapshot with its golden file, or rewrites
// the file when update is set. A missing golden file is not a failure.
// Returns "" when there was nothing to compare.
func checkGolden(scenarioFile string, result *harness.Result, update bool) (string, error) {
	data, err := harness.NewSnapshot(result).MarshalCanonical()
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := goldenFilePath(scenarioFile, result.Scenario)
	if update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write golden file: %w", err)
		}
		return "updated", nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return "mismatch", nil
	}
	return "match", nil
}

// printScenario writes the text form of one scenario outcome.
func printScenario(w io.Writer, r ScenarioResult) {
	mark := "✓"
	if !r.Pass {
		mark = "✗"
	}
	suffix := ""
	if r.Golden == "updated" {
		suffix = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, r.Name, suffix)
	if r.Error != "" && !r.Pass {
		fmt.Fprintf(w, "  raised: %s\n", r.Error)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", indent(e))
	}
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
