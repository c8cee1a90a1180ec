// Package store persists orchestration run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/intel-lattice/internal/config"
	"github.com/kingrea/intel-lattice/internal/workflow/engine"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	subject      TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	record       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);
CREATE TABLE IF NOT EXISTS module_results (
	run_pk          INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position        INTEGER NOT NULL,
	module          TEXT NOT NULL,
	status          TEXT NOT NULL,
	summary         TEXT NOT NULL,
	profile_section TEXT NOT NULL,
	PRIMARY KEY (run_pk, position)
);
CREATE INDEX IF NOT EXISTS idx_module_results_status ON module_results(status);
`

// SQLStore implements engine.RunStore on SQLite.
type SQLStore struct {
	db *sql.DB
}

var _ engine.RunStore = (*SQLStore)(nil)

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	var v int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("store: set schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("store: read schema version: %w", err)
	case v != schemaVersion:
		return fmt.Errorf("store: unknown schema version %d", v)
	}
	return nil
}

// SaveRun stores record and its per-module outcomes in one transaction.
func (s *SQLStore) SaveRun(ctx context.Context, subject string, record engine.OrchestrationRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO runs(run_id, subject, started_at, completed_at, record) VALUES(?, ?, ?, ?, ?)",
		record.RunID, subject, formatTime(record.State.StartedAt), formatTime(record.State.CompletedAt), string(encoded),
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	runPK, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: run id: %w", err)
	}
	for idx, result := range record.ModuleResults {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO module_results(run_pk, position, module, status, summary, profile_section) VALUES(?, ?, ?, ?, ?, ?)",
			runPK, idx, result.Module, string(result.Status), result.Summary, result.ProfileSection,
		); err != nil {
			return fmt.Errorf("store: insert result %s: %w", result.Module, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Runs returns the most recent records for subject, newest first. A limit
// <= 0 returns every record.
func (s *SQLStore) Runs(ctx context.Context, subject string, limit int) ([]engine.OrchestrationRecord, error) {
	query := "SELECT record FROM runs WHERE subject = ? ORDER BY id DESC"
	args := []any{subject}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query runs: %w", err)
	}
	defer rows.Close()
	var out []engine.OrchestrationRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		var record engine.OrchestrationRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("store: decode run: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// ExecutedModules returns the sorted set of modules that completed in any
// recorded run for subject.
func (s *SQLStore) ExecutedModules(ctx context.Context, subject string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT m.module
FROM module_results m JOIN runs r ON r.id = m.run_pk
WHERE r.subject = ? AND m.status = ?
ORDER BY m.module`, subject, string(engine.StatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("store: query executed modules: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan module: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Subjects lists every subject with recorded runs.
func (s *SQLStore) Subjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT subject FROM runs ORDER BY subject")
	if err != nil {
		return nil, fmt.Errorf("store: query subjects: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, err
		}
		out = append(out, subject)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// OpenRunStore returns the history store for a configured driver.
func OpenRunStore(driver, path string) (engine.RunStore, error) {
	switch driver {
	case config.HistorySQLite, "":
		return Open(path)
	case config.HistoryJSON:
		return engine.NewRepository(path), nil
	default:
		return nil, fmt.Errorf("store: unknown history driver %q", driver)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
