package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
	"github.com/GriffinCanCode/olfactory-vision/internal/orchestrator/progress"
)

// Run is one pipeline run as recorded in history.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     string     `json:"status"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	Coverage   float64    `json:"coverage"`
	Attempts   int        `json:"attempts"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is what Finish records.
type Outcome struct {
	Status    string
	ErrorCode string
	Error     string
	Coverage  float64
	Attempts  int
	Report    []byte
}

// Store is safe for concurrent use.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "open database")
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(err, apperr.CodeInternal, "migrate database").WithMetadata("path", path)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records a new running run.
func (s *Store) Start(ctx context.Context, id, source string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, StatusRunning, s.now().UnixMilli())
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "insert run").WithMetadata("run_id", id)
	}
	return nil
}

// Finish records the outcome of a run started with Start.
func (s *Store) Finish(ctx context.Context, id string, o Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error_code = ?, error = ?, coverage = ?, attempts = ?,
			finished_at = ?, report = ?
		WHERE id = ?`,
		o.Status, o.ErrorCode, o.Error, o.Coverage, o.Attempts, s.now().UnixMilli(), o.Report, id)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "update run").WithMetadata("run_id", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.CodeNotFound, "run not found").WithMetadata("run_id", id)
	}
	return nil
}

const runColumns = `id, source, status, error_code, error, coverage, attempts, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Source, &r.Status, &r.ErrorCode, &r.Error,
		&r.Coverage, &r.Attempts, &started, &finished); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return r, nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, apperr.New(apperr.CodeNotFound, "run not found").WithMetadata("run_id", id)
	}
	if err != nil {
		return Run{}, apperr.Wrap(err, apperr.CodeInternal, "scan run")
	}
	return r, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "scan run")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Report returns the stored report JSON of a succeeded run.
func (s *Store) Report(ctx context.Context, id string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&body)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, apperr.New(apperr.CodeNotFound, "run not found").WithMetadata("run_id", id)
	case err != nil:
		return nil, apperr.Wrap(err, apperr.CodeInternal, "query report")
	case len(body) == 0:
		return nil, apperr.New(apperr.CodeNotFound, "run has no report").WithMetadata("run_id", id)
	}
	return body, nil
}

// AppendEvents writes events in one transaction.
func (s *Store) AppendEvents(ctx context.Context, events []progress.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, stage, state, attempt, coverage, message, at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "prepare event insert")
	}
	defer stmt.Close()

	for _, e := range events {
		at := e.Time
		if at.IsZero() {
			at = s.now()
		}
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Stage, e.State, e.Attempt, e.Coverage, e.Message, at.UnixMilli()); err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "insert event").WithMetadata("run_id", e.RunID)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "commit events")
	}
	return nil
}

// Events returns a run's events, oldest first.
func (s *Store) Events(ctx context.Context, runID string) ([]progress.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, state, attempt, coverage, message, at
		FROM events WHERE run_id = ? ORDER BY at, id`, runID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "query events")
	}
	defer rows.Close()

	var out []progress.Event
	for rows.Next() {
		var (
			e  progress.Event
			at int64
		)
		if err := rows.Scan(&e.RunID, &e.Stage, &e.State, &e.Attempt, &e.Coverage, &e.Message, &at); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "scan event")
		}
		e.Time = time.UnixMilli(at).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
