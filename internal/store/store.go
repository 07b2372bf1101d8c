// Package store provides the SQLite-backed run ledger for getobs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jeromebarre/get-obs/internal/models"
	_ "modernc.org/sqlite"
)

// Store provides access to the ledger database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time; parallel fetches share this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		instrument TEXT NOT NULL,
		platform TEXT NOT NULL,
		observable TEXT NOT NULL,
		span_start DATETIME NOT NULL,
		span_end DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		windows INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS windows (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		win_start DATETIME NOT NULL,
		win_end DATETIME NOT NULL,
		win_center DATETIME NOT NULL,
		requests INTEGER NOT NULL,
		fetch_failures INTEGER NOT NULL,
		outputs TEXT,
		errors TEXT,
		status TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS execs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		window_idx INTEGER NOT NULL,
		phase TEXT NOT NULL,
		command TEXT NOT NULL,
		args TEXT,
		exit_code INTEGER,
		stderr TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		run_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_windows_run_id ON windows(run_id);
	CREATE INDEX IF NOT EXISTS idx_execs_run_id ON execs(run_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_run_id ON pdr(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

// CreateRun inserts a new running run.
func (s *Store) CreateRun(instrument, platform, observable string, start, end time.Time) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.New().String(),
		Instrument: instrument,
		Platform:   platform,
		Observable: observable,
		Start:      start.UTC(),
		End:        end.UTC(),
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, instrument, platform, observable, span_start, span_end, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Instrument, run.Platform, run.Observable, run.Start, run.End, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(id string, status models.RunStatus, windows, failed int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, windows = ?, failed = ?, ended_at = ? WHERE id = ?`,
		status, windows, failed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

const runColumns = `id, instrument, platform, observable, span_start, span_end, status, windows, failed, started_at, ended_at`

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first, at most limit when limit > 0.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var endedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Instrument, &run.Platform, &run.Observable, &run.Start, &run.End,
		&run.Status, &run.Windows, &run.Failed, &run.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		run.EndedAt = endedAt.Time
	}
	return &run, nil
}

// --- Window Operations ---

// RecordWindow stores the result of one window.
func (s *Store) RecordWindow(res *models.WindowResult) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	outputs, _ := json.Marshal(res.Outputs)
	errs, _ := json.Marshal(res.Errors)

	_, err := s.db.Exec(
		`INSERT INTO windows (id, run_id, idx, win_start, win_end, win_center, requests, fetch_failures, outputs, errors, status) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.RunID, res.Window.Index, res.Window.Start.UTC(), res.Window.End.UTC(), res.Window.Center.UTC(),
		res.Requests, res.FetchFailures, string(outputs), string(errs), res.Status,
	)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}
	return nil
}

// GetWindowsForRun returns a run's window results in window order.
func (s *Store) GetWindowsForRun(runID string) ([]models.WindowResult, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, idx, win_start, win_end, win_center, requests, fetch_failures, outputs, errors, status FROM windows WHERE run_id = ? ORDER BY idx ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var results []models.WindowResult
	for rows.Next() {
		var res models.WindowResult
		var outputs, errs sql.NullString
		if err := rows.Scan(&res.ID, &res.RunID, &res.Window.Index, &res.Window.Start, &res.Window.End, &res.Window.Center,
			&res.Requests, &res.FetchFailures, &outputs, &errs, &res.Status); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		if outputs.Valid {
			json.Unmarshal([]byte(outputs.String), &res.Outputs)
		}
		if errs.Valid {
			json.Unmarshal([]byte(errs.String), &res.Errors)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// --- Exec Operations ---

// RecordExec stores one external process invocation.
func (s *Store) RecordExec(e *models.Exec) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	argsJSON, _ := json.Marshal(e.Args)

	_, err := s.db.Exec(
		`INSERT INTO execs (id, run_id, window_idx, phase, command, args, exit_code, stderr, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Window, e.Phase, e.Command, string(argsJSON), e.ExitCode, e.Stderr, e.StartedAt.UTC(), e.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert exec: %w", err)
	}
	return nil
}

// GetExecsForRun returns all process invocations for a run.
func (s *Store) GetExecsForRun(runID string) ([]models.Exec, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, window_idx, phase, command, args, exit_code, stderr, started_at, ended_at FROM execs WHERE run_id = ? ORDER BY started_at ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query execs: %w", err)
	}
	defer rows.Close()

	var execs []models.Exec
	for rows.Next() {
		var e models.Exec
		var argsJSON, stderr sql.NullString
		var endedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.RunID, &e.Window, &e.Phase, &e.Command, &argsJSON, &e.ExitCode, &stderr, &e.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan exec: %w", err)
		}
		if argsJSON.Valid {
			json.Unmarshal([]byte(argsJSON.String), &e.Args)
		}
		e.Stderr = stderr.String
		if endedAt.Valid {
			e.EndedAt = endedAt.Time
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, runID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		RunID:      runID,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, run_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.RunID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the decision records of a run in write order.
func (s *Store) ListPDR(runID string) ([]models.PDREntry, error) {
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, run_id, details, timestamp FROM pdr WHERE run_id = ? ORDER BY timestamp ASC, rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var p models.PDREntry
		var runIDCol, details sql.NullString
		if err := rows.Scan(&p.ID, &p.Action, &p.InputsHash, &p.Outcome, &runIDCol, &details, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		p.RunID = runIDCol.String
		p.Details = details.String
		entries = append(entries, p)
	}
	return entries, rows.Err()
}
