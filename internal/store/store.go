package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades the ledger by one schema version. Version 0 is the bare
// runs table from schema.sql.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		version: 1,
		name:    "index runs by scenario",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario, started_at)`,
	},
}

// currentSchemaVersion is the user_version a fully migrated ledger carries.
var currentSchemaVersion = migrations[len(migrations)-1].version

// ErrNewerSchema is returned by Open for a ledger written by a newer build.
var ErrNewerSchema = errors.New("ledger schema is newer than this build supports")

// Store is the run ledger.
type Store struct {
	db *sql.DB
}

// Open creates or opens the ledger at path and brings its schema up to date.
//
// Connection settings travel in the DSN so every pooled connection gets them:
// WAL journaling, synchronous=NORMAL, a 5s busy timeout and foreign keys.
// The pool is capped at one connection since every ledger write is a single
// insert and SQLite allows one writer. Opening an up-to-date ledger is a no-op.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_synchronous", "NORMAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "on")
	return "file:" + path + "?" + params.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Check reports whether the file behind s is a healthy, current ledger:
// SQLite's quick_check passes, the schema version matches this build and the
// runs table is readable.
func (s *Store) Check(ctx context.Context) error {
	integrity, err := s.pragma(ctx, "quick_check")
	if err != nil {
		return err
	}
	if integrity != "ok" {
		return fmt.Errorf("ledger integrity check failed: %s", integrity)
	}

	version, err := schemaVersion(ctx, s.db)
	if err != nil {
		return err
	}
	if version != currentSchemaVersion {
		return fmt.Errorf("ledger schema v%d, want v%d", version, currentSchemaVersion)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return fmt.Errorf("runs table unreadable: %w", err)
	}
	return nil
}

// migrate creates the runs table if needed and applies every migration
// above the stored user_version. Each migration commits together with its
// version bump, so an interrupted upgrade resumes where it stopped.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	version, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: v%d > v%d", ErrNewerSchema, version, currentSchemaVersion)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate to v%d: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
	}
	return tx.Commit()
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// pragma reads a single-valued pragma as text.
func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return "", fmt.Errorf("failed to query %s: %w", name, err)
	}
	return value, nil
}
