package cli

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmaprun/internal/store"
)

func TestHistoryCommandRequiresDB(t *testing.T) {
	_, err := execute(t, NewHistoryCommand(testRootOptions("text")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

func TestHistoryCommandMissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nope.db")

	_, err := execute(t, NewHistoryCommand(testRootOptions("text")), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
	assert.NoFileExists(t, dbPath)
}

func TestHistoryCommandRefusesNewerLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = execute(t, NewHistoryCommand(testRootOptions("text")), "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNewerSchema)
}

// recordRuns runs the test command against a passing and a failing
// scenario with the ledger enabled.
func recordRuns(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	writeScenario(t, scenarios, "a-pass.yml", passingScenario)
	writeScenario(t, scenarios, "b-fail.yml", failingScenario)
	dbPath := filepath.Join(dir, "runs.db")

	_, err := execute(t, NewTestCommand(testRootOptions("text")), "--db", dbPath, scenarios)
	require.Error(t, err, "b-fail is expected to fail")
	return dbPath
}

func TestHistoryCommandText(t *testing.T) {
	dbPath := recordRuns(t)

	out, err := execute(t, NewHistoryCommand(testRootOptions("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "SCENARIO")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "a-pass")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
}

func TestHistoryCommandJSONLimit(t *testing.T) {
	dbPath := recordRuns(t)

	out, err := execute(t, NewHistoryCommand(testRootOptions("json")), "--db", dbPath, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Runs []HistoryEntry `json:"runs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Runs, 1)
	// Same start time; the ID tiebreak puts run-2 first.
	assert.Equal(t, "run-2", resp.Data.Runs[0].ID)
	assert.False(t, resp.Data.Runs[0].Pass)
	assert.NotEmpty(t, resp.Data.Runs[0].Errors)
}

func TestHistoryCommandEmptyLedger(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := execute(t, NewHistoryCommand(testRootOptions("text")), "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)
}
