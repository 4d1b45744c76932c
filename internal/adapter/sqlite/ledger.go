// Package sqlite keeps the run history in a local SQLite database using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
	"github.com/couchcryptid/burn-suitability-etl/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);
CREATE TABLE IF NOT EXISTS run_stages (
	run_id      TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ns INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);`

// detail holds the report fields stored as a JSON document.
type detail struct {
	Inputs   []pipeline.InputReport  `json:"inputs,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	Regions  []domain.RegionSnapshot `json:"regions,omitempty"`
}

// Ledger records pipeline runs. It implements pipeline.RunRecorder.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// A single connection serializes writers and keeps pragmas in effect.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// RecordRun stores a finished report and its stages in one transaction.
func (l *Ledger) RecordRun(ctx context.Context, r pipeline.RunReport) error {
	d, err := json.Marshal(detail{Inputs: r.Inputs, Warnings: r.Warnings, Regions: r.Regions})
	if err != nil {
		return fmt.Errorf("encode run detail: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, started_at, finished_at, status, error, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, formatTime(r.StartedAt), formatTime(r.FinishedAt), r.Status, r.Error, string(d),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_stages WHERE run_id = ?`, r.RunID); err != nil {
		return fmt.Errorf("clear stages for %s: %w", r.RunID, err)
	}
	for i, s := range r.Stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, position, name, status, duration_ns, error) VALUES (?, ?, ?, ?, ?, ?)`,
			r.RunID, i, s.Name, s.Status, int64(s.Duration), s.Error,
		); err != nil {
			return fmt.Errorf("insert stage %s for %s: %w", s.Name, r.RunID, err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit runs, newest first. A non-positive limit
// defaults to 20.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]pipeline.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, started_at, finished_at, status, error, detail FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.RunReport
	for rows.Next() {
		var (
			r                 pipeline.RunReport
			started, finished string
			raw               string
		)
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Status, &r.Error, &raw); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)

		var d detail
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("decode run %s detail: %w", r.RunID, err)
		}
		r.Inputs, r.Warnings, r.Regions = d.Inputs, d.Warnings, d.Regions
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range out {
		stages, err := l.stages(ctx, out[i].RunID)
		if err != nil {
			return nil, err
		}
		out[i].Stages = stages
	}
	return out, nil
}

func (l *Ledger) stages(ctx context.Context, runID string) ([]pipeline.StageReport, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT name, status, duration_ns, error FROM run_stages WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stages for %s: %w", runID, err)
	}
	defer rows.Close()

	var out []pipeline.StageReport
	for rows.Next() {
		var (
			s  pipeline.StageReport
			ns int64
		)
		if err := rows.Scan(&s.Name, &s.Status, &ns, &s.Error); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		s.Duration = time.Duration(ns)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// timeLayout is fixed width so text order matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
