package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cmaprun/internal/testutil"
)

const passingScenario = `version: 1
style: unit
description: must be able to check out and check in a connection
poolOptions: {}
operations:
  - name: checkOut
    label: conn
  - name: checkIn
    connection: conn
events:
  - type: ConnectionCheckedOut
    connectionId: 1
  - type: ConnectionCheckedIn
    connectionId: 1
ignore:
  - ConnectionPoolCreated
  - ConnectionCheckOutStarted
  - ConnectionCreated
  - ConnectionReady
`

const failingScenario = `version: 1
style: unit
description: expects an event the pool never emits
poolOptions: {}
operations:
  - name: checkOut
events:
  - type: ConnectionCheckedOut
    connectionId: 1
  - type: ConnectionPoolCleared
ignore:
  - ConnectionPoolCreated
  - ConnectionCheckOutStarted
  - ConnectionCreated
  - ConnectionReady
`

const closedPoolScenario = `{
  "version": 1,
  "style": "unit",
  "description": "must throw error if checkOut is called on a closed pool",
  "poolOptions": {"maxPoolSize": 1},
  "operations": [{"name": "close"}, {"name": "checkOut"}],
  "error": {
    "type": "PoolClosedError",
    "message": "Attempted to check out a connection from closed connection pool"
  },
  "events": [
    {"type": "ConnectionPoolClosed"},
    {"type": "ConnectionCheckOutFailed", "reason": "poolClosed"}
  ],
  "ignore": ["ConnectionPoolCreated", "ConnectionCheckOutStarted"]
}
`

const unsupportedScenario = `version: 1
style: unit
description: uses an operation outside the vocabulary
operations:
  - name: frobnicate
events: []
`

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// testRootOptions returns options with predictable run IDs and timestamps.
func testRootOptions(format string) *RootOptions {
	clock := testutil.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return &RootOptions{
		Format: format,
		IDs:    testutil.NewSequentialIDGenerator("run"),
		Now:    clock.Now,
	}
}

// execute runs cmd with args and returns stdout and the command error.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
