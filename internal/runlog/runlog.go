// Package runlog records pipeline runs in a local SQLite ledger: one
// row per run, one row per stage with before/after row counts, and the
// serialized validation report. The ledger is operational bookkeeping
// for the orchestrating collaborator; the pipeline core never reads it.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Run is one pipeline invocation.
type Run struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Rows        int64      `json:"rows"`
	Columns     int64      `json:"columns"`
	Error       string     `json:"error,omitempty"`
}

// Stage is one pipeline stage within a run.
type Stage struct {
	RunID   string `json:"run_id"`
	Name    string `json:"name"`
	RowsIn  int64  `json:"rows_in"`
	RowsOut int64  `json:"rows_out"`
	ColsOut int64  `json:"cols_out"`
}

// Ledger provides read/write access to the run ledger database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at the given path and
// configures WAL mode.
func Open(dsn string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	return &Ledger{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	rows         INTEGER NOT NULL DEFAULT 0,
	columns      INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	rows_in    INTEGER NOT NULL,
	rows_out   INTEGER NOT NULL,
	cols_out   INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	run_id     TEXT PRIMARY KEY REFERENCES runs(id),
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
`

// Migrate creates the ledger schema.
func (l *Ledger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records the beginning of a run and returns its ID.
func (l *Ledger) StartRun(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "runlog: start run")
	}
	return id, nil
}

// CompleteRun marks a run complete with the merged table's shape.
func (l *Ledger) CompleteRun(ctx context.Context, runID string, rows, cols int) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, rows = ?, columns = ? WHERE id = ?`,
		StatusComplete, time.Now().UTC(), rows, cols, runID,
	)
	return eris.Wrapf(err, "runlog: complete run %s", runID)
}

// FailRun marks a run failed with its error message.
func (l *Ledger) FailRun(ctx context.Context, runID string, runErr error) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), runErr.Error(), runID,
	)
	return eris.Wrapf(err, "runlog: fail run %s", runID)
}

// RecordStage appends one stage's row accounting to the run.
func (l *Ledger) RecordStage(ctx context.Context, s Stage) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, rows_in, rows_out, cols_out) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), s.RunID, s.Name, s.RowsIn, s.RowsOut, s.ColsOut,
	)
	return eris.Wrapf(err, "runlog: record stage %s", s.Name)
}

// SaveReport stores the serialized validation report for a run.
func (l *Ledger) SaveReport(ctx context.Context, runID string, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "runlog: marshal report")
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO reports (run_id, report) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET report = excluded.report`,
		runID, string(data),
	)
	return eris.Wrapf(err, "runlog: save report for %s", runID)
}

// LatestReport returns the most recently stored validation report, or
// nil when no report exists yet.
func (l *Ledger) LatestReport(ctx context.Context) (json.RawMessage, error) {
	var data string
	err := l.db.QueryRowContext(ctx,
		`SELECT report FROM reports ORDER BY created_at DESC, run_id DESC LIMIT 1`,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "runlog: latest report")
	}
	return json.RawMessage(data), nil
}

// ListRuns returns the most recent runs, newest first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, status, started_at, completed_at, rows, columns, COALESCE(error, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &completed, &r.Rows, &r.Columns, &r.Error); err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "runlog: iterate runs")
}
