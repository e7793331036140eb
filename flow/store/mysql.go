package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists run history in MySQL/MariaDB, for deployments
// where runs must survive process restarts or be shared across workers.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL-backed store. DSN format:
//
//	user:password@tcp(localhost:3306)/flowline?parseTime=true
//
// Pass parseTime=true so TIMESTAMP columns scan into time.Time. Never
// hardcode credentials; read the DSN from the environment.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			node_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			output JSON,
			fallback TINYINT(1) NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_run_id (run_id),
			UNIQUE KEY unique_run_step (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS run_snapshots (
			run_id VARCHAR(255) PRIMARY KEY,
			step INT NOT NULL,
			state JSON NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(255) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			input_tokens BIGINT NOT NULL DEFAULT 0,
			output_tokens BIGINT NOT NULL DEFAULT 0,
			cost_usd DOUBLE NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	}
	for _, stmt := range statements {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (m *MySQLStore) SaveStep(ctx context.Context, rec StepRecord) error {
	var output interface{}
	if len(rec.Output) > 0 {
		output = string(rec.Output)
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO run_steps (run_id, step, node_id, kind, status, output, fallback, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			node_id=VALUES(node_id), kind=VALUES(kind), status=VALUES(status),
			output=VALUES(output), fallback=VALUES(fallback), duration_ms=VALUES(duration_ms)`,
		rec.RunID, rec.Step, rec.NodeID, rec.Kind, rec.Status, output, rec.Fallback, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

func (m *MySQLStore) History(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := m.db.QueryContext(ctx,
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
		if err := rows.Scan(&rec.RunID, &rec.Step, &rec.NodeID, &rec.Kind, &rec.Status,
			&output, &rec.Fallback, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if output.Valid && output.String != "" {
			rec.Output = json.RawMessage(output.String)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *MySQLStore) SaveSnapshot(ctx context.Context, runID string, step int, state json.RawMessage) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO run_snapshots (run_id, step, state) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE step=VALUES(step), state=VALUES(state)`,
		runID, step, string(state))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (m *MySQLStore) LoadSnapshot(ctx context.Context, runID string) (json.RawMessage, int, error) {
	var state string
	var step int
	err := m.db.QueryRowContext(ctx,
		`SELECT state, step FROM run_snapshots WHERE run_id = ?`, runID).Scan(&state, &step)
	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return json.RawMessage(state), step, nil
}

func (m *MySQLStore) SaveRun(ctx context.Context, rec RunRecord) error {
	var finishedAt interface{}
	if !rec.FinishedAt.IsZero() {
		finishedAt = rec.FinishedAt
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, status, input_tokens, output_tokens, cost_usd, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
			status=VALUES(status), input_tokens=VALUES(input_tokens), output_tokens=VALUES(output_tokens),
			cost_usd=VALUES(cost_usd), finished_at=VALUES(finished_at)`,
		rec.RunID, rec.Status, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (m *MySQLStore) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	var finishedAt sql.NullTime
	err := m.db.QueryRowContext(ctx,
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

func (m *MySQLStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := m.db.QueryContext(ctx,
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

func (m *MySQLStore) Close() error {
	return m.db.Close()
}
