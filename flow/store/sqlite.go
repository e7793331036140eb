package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists run history in a single-file database. WAL mode
// is enabled so readers don't block behind the single writer. Use
// ":memory:" for a throwaway database in tests.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			node_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			fallback INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_steps_run_id ON run_steps(run_id)`,
		`CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id TEXT PRIMARY KEY,
			step INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveStep(ctx context.Context, rec StepRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_steps (run_id, step, node_id, kind, status, output, fallback, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, step) DO UPDATE SET
			node_id=excluded.node_id, kind=excluded.kind, status=excluded.status,
			output=excluded.output, fallback=excluded.fallback, duration_ms=excluded.duration_ms`,
		rec.RunID, rec.Step, rec.NodeID, rec.Kind, rec.Status, string(rec.Output), boolToInt(rec.Fallback), rec.DurationMS, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step, node_id, kind, status, output, fallback, duration_ms, created_at
		 FROM run_steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var rec StepRecord
		var output sql.NullString
		var fallback int
		if err := rows.Scan(&rec.RunID, &rec.Step, &rec.NodeID, &rec.Kind, &rec.Status,
			&output, &fallback, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if output.Valid && output.String != "" {
			rec.Output = json.RawMessage(output.String)
		}
		rec.Fallback = fallback != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID string, step int, state json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_snapshots (run_id, step, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET step=excluded.step, state=excluded.state, updated_at=excluded.updated_at`,
		runID, step, string(state), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, runID string) (json.RawMessage, int, error) {
	var state string
	var step int
	err := s.db.QueryRowContext(ctx,
		`SELECT state, step FROM run_snapshots WHERE run_id = ?`, runID).Scan(&state, &step)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return json.RawMessage(state), step, nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec RunRecord) error {
	var finishedAt interface{}
	if !rec.FinishedAt.IsZero() {
		finishedAt = rec.FinishedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, status, input_tokens, output_tokens, cost_usd, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			status=excluded.status, input_tokens=excluded.input_tokens, output_tokens=excluded.output_tokens,
			cost_usd=excluded.cost_usd, finished_at=excluded.finished_at`,
		rec.RunID, rec.Status, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, status, input_tokens, output_tokens, cost_usd, started_at, finished_at
		 FROM runs WHERE run_id = ?`, runID).
		Scan(&rec.RunID, &rec.Status, &rec.InputTokens, &rec.OutputTokens, &rec.CostUSD, &rec.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run: %w", err)
	}
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	return rec, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, status, input_tokens, output_tokens, cost_usd, started_at, finished_at
		 FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var finishedAt sql.NullTime
		if err := rows.Scan(&rec.RunID, &rec.Status, &rec.InputTokens, &rec.OutputTokens,
			&rec.CostUSD, &rec.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finishedAt.Valid {
			rec.FinishedAt = finishedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
