// Package ledger records every training run and its stages in a SQLite
// database inside the cache directory.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the outcome of a run or stage.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// timeFormat keeps fixed-width fractions so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrRunNotFound is returned when no run matches.
var ErrRunNotFound = errors.New("run not found")

// Run is one invocation of the training pipeline.
type Run struct {
	ID            string
	Corpus        string
	Pair          string
	Mode          string
	Fingerprint   string
	TrainingLines int
	Status        Status
	RulesPath     string
	StartedAt     time.Time
	CompletedAt   *time.Time
	LastError     string
}

// StageRun is one stage of a run.
type StageRun struct {
	ID          string
	RunID       string
	Seq         int
	Stage       string
	Status      Status
	StartedAt   time.Time
	CompletedAt *time.Time
	Artifact    string
	Bytes       int64
	Blake3      string
	LastError   string
}

// Duration returns the stage's wall time, or zero while it is running.
func (s StageRun) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Outcome describes how a stage ended.
type Outcome struct {
	Status   Status
	Artifact string
	Bytes    int64
	Blake3   string
	Err      error
}

// Ledger is a handle on the run database.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := openSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// StartRun inserts a run in the running state. An empty ID is replaced by a
// new UUID; the stored run is returned.
func (l *Ledger) StartRun(ctx context.Context, run Run) (*Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Status = StatusRunning
	run.StartedAt = l.now().UTC()

	_, err := l.db.ExecContext(ctx, `
INSERT INTO runs(id, corpus, pair, mode, fingerprint, training_lines, status, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		run.ID, run.Corpus, run.Pair, run.Mode, run.Fingerprint, run.TrainingLines,
		string(run.Status), run.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &run, nil
}

// SetTrainingLines records the effective line budget after clamping.
func (l *Ledger) SetTrainingLines(ctx context.Context, runID string, n int) error {
	_, err := l.db.ExecContext(ctx, `UPDATE runs SET training_lines = ? WHERE id = ?;`, n, runID)
	if err != nil {
		return fmt.Errorf("update run training_lines: %w", err)
	}
	return nil
}

// FinishRun marks a run succeeded (err == nil) or failed.
func (l *Ledger) FinishRun(ctx context.Context, runID, rulesPath string, runErr error) error {
	status := StatusSucceeded
	var lastErr any
	if runErr != nil {
		status = StatusFailed
		lastErr = runErr.Error()
	}
	_, err := l.db.ExecContext(ctx, `
UPDATE runs SET status = ?, rules_path = ?, completed_at = ?, last_error = ?
WHERE id = ?;`,
		string(status), nullString(rulesPath), l.now().UTC().Format(timeFormat), lastErr, runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// BeginStage records that a stage started and returns its row ID.
func (l *Ledger) BeginStage(ctx context.Context, runID string, seq int, stage string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx, `
INSERT INTO stage_runs(id, run_id, seq, stage, status, started_at)
VALUES(?, ?, ?, ?, ?, ?);`,
		id, runID, seq, stage, string(StatusRunning), l.now().UTC().Format(timeFormat),
	)
	if err != nil {
		return "", fmt.Errorf("insert stage run: %w", err)
	}
	return id, nil
}

// FinishStage stores a stage outcome.
func (l *Ledger) FinishStage(ctx context.Context, stageRunID string, out Outcome) error {
	status := out.Status
	if status == "" {
		status = StatusSucceeded
	}
	var lastErr any
	if out.Err != nil {
		status = StatusFailed
		lastErr = out.Err.Error()
	}
	var size any
	if out.Artifact != "" && out.Bytes >= 0 {
		size = out.Bytes
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE stage_runs SET status = ?, completed_at = ?, artifact = ?, bytes = ?, blake3 = ?, last_error = ?
WHERE id = ?;`,
		string(status), l.now().UTC().Format(timeFormat),
		nullString(out.Artifact), size, nullString(out.Blake3), lastErr, stageRunID,
	)
	if err != nil {
		return fmt.Errorf("update stage run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage run %q not found", stageRunID)
	}
	return nil
}

// LatestRun returns the most recently started run.
func (l *Ledger) LatestRun(ctx context.Context) (*Run, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT id, corpus, pair, mode, fingerprint, training_lines, status,
       COALESCE(rules_path, ''), started_at, completed_at, COALESCE(last_error, '')
FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1;`)

	var (
		r               Run
		status, started string
		completed       sql.NullString
	)
	err := row.Scan(&r.ID, &r.Corpus, &r.Pair, &r.Mode, &r.Fingerprint, &r.TrainingLines,
		&status, &r.RulesPath, &started, &completed, &r.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest run: %w", err)
	}
	r.Status = Status(status)
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if r.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	return &r, nil
}

// Stages returns a run's stages in execution order.
func (l *Ledger) Stages(ctx context.Context, runID string) ([]StageRun, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT id, run_id, seq, stage, status, started_at, completed_at,
       COALESCE(artifact, ''), COALESCE(bytes, -1), COALESCE(blake3, ''), COALESCE(last_error, '')
FROM stage_runs WHERE run_id = ? ORDER BY seq ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("query stage runs: %w", err)
	}
	defer rows.Close()

	var out []StageRun
	for rows.Next() {
		var (
			s               StageRun
			status, started string
			completed       sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.RunID, &s.Seq, &s.Stage, &status, &started, &completed,
			&s.Artifact, &s.Bytes, &s.Blake3, &s.LastError); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		s.Status = Status(status)
		if s.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if s.CompletedAt, err = parseNullTime(completed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage runs: %w", err)
	}
	return out, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
