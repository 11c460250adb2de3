package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them; a plain
	// PRAGMA statement lands on one connection only, leaving the rest with
	// busy_timeout=0 and racy writers failing with SQLITE_BUSY.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS process_instance (
  id           TEXT PRIMARY KEY,
  workflow_ref TEXT NOT NULL,
  status       TEXT NOT NULL,
  requirements JSON,
  variables    JSON,
  out_vars     JSON,
  deadline     TEXT,
  parent_id    TEXT,
  kind         TEXT NOT NULL DEFAULT '',
  wait_type    TEXT,
  wait_key     TEXT,
  claimed_by   TEXT NOT NULL DEFAULT '',
  initiated_by TEXT NOT NULL DEFAULT '',
  org          TEXT NOT NULL DEFAULT '',
  project      TEXT NOT NULL DEFAULT '',
  session_key  TEXT NOT NULL DEFAULT '',
  created_at   TEXT NOT NULL,
  started_at   TEXT,
  completed_at TEXT,
  last_error   TEXT
);`,
		`CREATE INDEX IF NOT EXISTS process_instance_status_created_at_idx
  ON process_instance(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS process_instance_status_deadline_idx
  ON process_instance(status, deadline) WHERE deadline IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS process_instance_wait_idx
  ON process_instance(wait_type, wait_key) WHERE wait_type IS NOT NULL;`,
		// At most one timeout handler per parent, enforced structurally.
		`CREATE UNIQUE INDEX IF NOT EXISTS process_instance_timeout_handler_idx
  ON process_instance(parent_id) WHERE kind = 'TIMEOUT_HANDLER';`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
