package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemStore is the in-memory Store. Thread-safe. Data is lost when the
// process exits; history grows unbounded.
type MemStore struct {
	mu        sync.RWMutex
	steps     map[string][]StepRecord
	snapshots map[string]snapshot
	runs      map[string]RunRecord
}

type snapshot struct {
	step  int
	state json.RawMessage
}

func NewMemStore() *MemStore {
	return &MemStore{
		steps:     make(map[string][]StepRecord),
		snapshots: make(map[string]snapshot),
		runs:      make(map[string]RunRecord),
	}
}

func (m *MemStore) SaveStep(_ context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[rec.RunID] = append(m.steps[rec.RunID], rec)
	return nil
}

func (m *MemStore) History(_ context.Context, runID string) ([]StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]StepRecord, len(m.steps[runID]))
	copy(records, m.steps[runID])
	sort.SliceStable(records, func(i, j int) bool { return records[i].Step < records[j].Step })
	return records, nil
}

func (m *MemStore) SaveSnapshot(_ context.Context, runID string, step int, state json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make(json.RawMessage, len(state))
	copy(stored, state)
	m.snapshots[runID] = snapshot{step: step, state: stored}
	return nil
}

func (m *MemStore) LoadSnapshot(_ context.Context, runID string) (json.RawMessage, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[runID]
	if !ok {
		return nil, 0, ErrNotFound
	}
	state := make(json.RawMessage, len(snap.state))
	copy(state, snap.state)
	return state, snap.step, nil
}

func (m *MemStore) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.RunID] = rec
	return nil
}

func (m *MemStore) LoadRun(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemStore) ListRuns(_ context.Context) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.After(records[j].StartedAt) })
	return records, nil
}

func (m *MemStore) Close() error { return nil }
