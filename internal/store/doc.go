// Package store provides the SQLite-backed run ledger.
//
// Every scenario executed by the CLI with a database configured is recorded
// as one row of the runs table: the scenario name, the file it came from, the
// verdict, the failure messages and the full event log.
//
// # Encoding
//
// The errors and events columns hold canonical JSON (see internal/canonical),
// so two runs with the same event log store byte-identical text.
//
// # Ordering
//
// ListRuns orders by started_at DESC, id DESC COLLATE BINARY. Run IDs are
// UUIDv7 in production, so the ID tiebreak follows creation order as well.
//
// # Database Configuration
//
// Settings are passed as go-sqlite3 DSN parameters so they hold on every
// connection:
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// # Schema Versions
//
// Schema changes are numbered migrations tracked in PRAGMA user_version, each
// committed with its version bump. A ledger with a version above the newest
// known migration is refused rather than written to. Check verifies an
// existing ledger before it is read.
package store
