// Package store persists workflow run history: per-step records, state
// snapshots for resumption, and run summaries with token accounting.
//
// Three backends are provided: in-memory (tests, short-lived runs),
// SQLite (single-process local persistence), and MySQL (shared
// deployments).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// StepRecord is one executed workflow step.
type StepRecord struct {
	RunID      string          `json:"run_id"`
	Step       int             `json:"step"`
	NodeID     string          `json:"node_id"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output,omitempty"`
	Fallback   bool            `json:"fallback,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RunRecord summarizes one workflow run.
type RunRecord struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Store persists run history. State snapshots are stored as serialized
// JSON so backends stay schema-agnostic about workflow state shape.
type Store interface {
	// SaveStep appends one step record to the run's history.
	SaveStep(ctx context.Context, rec StepRecord) error

	// History returns a run's step records in step order.
	History(ctx context.Context, runID string) ([]StepRecord, error)

	// SaveSnapshot persists the workflow state after a step, replacing
	// any earlier snapshot for the run.
	SaveSnapshot(ctx context.Context, runID string, step int, state json.RawMessage) error

	// LoadSnapshot returns the latest state snapshot and its step
	// number, or ErrNotFound.
	LoadSnapshot(ctx context.Context, runID string) (json.RawMessage, int, error)

	// SaveRun inserts or updates a run summary.
	SaveRun(ctx context.Context, rec RunRecord) error

	// LoadRun returns a run summary, or ErrNotFound.
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns all run summaries, most recently started first.
	ListRuns(ctx context.Context) ([]RunRecord, error)

	// Close releases backend resources.
	Close() error
}
