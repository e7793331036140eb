package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/flowline-ai/flowline/flow/emit"
	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/store"
)

// Runner drives a workflow: it executes nodes sequentially, applies
// each step's state deltas, and records history, events, and usage.
//
// The runner owns all state mutation. Executors return deltas
// (VariableUpdates, ChatHistoryUpdates) and the runner merges them, so
// a step can never partially corrupt shared state.
type Runner struct {
	agent   *AgentExecutor
	httpx   *HTTPExecutor
	mcp     *MCPExecutor
	creds   Credentials
	store   store.Store
	emitter emit.Emitter
	metrics *Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore persists step history and run summaries.
func WithStore(s store.Store) RunnerOption {
	return func(r *Runner) { r.store = s }
}

// WithEmitter sets the observability backend. Defaults to discarding.
func WithEmitter(e emit.Emitter) RunnerOption {
	return func(r *Runner) { r.emitter = e }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner assembles a runner from the three executors.
func NewRunner(agent *AgentExecutor, httpx *HTTPExecutor, mcp *MCPExecutor, creds Credentials, opts ...RunnerOption) *Runner {
	r := &Runner{
		agent:   agent,
		httpx:   httpx,
		mcp:     mcp,
		creds:   creds,
		emitter: emit.NewNullEmitter(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunResult is the outcome of a completed workflow run.
type RunResult struct {
	RunID   string
	State   *WorkflowState
	Usage   model.Usage
	CostUSD float64
}

// Run executes the nodes in order against a fresh state seeded with
// input. It stops at the first failing step.
func (r *Runner) Run(ctx context.Context, runID string, nodes []*WorkflowNode, input interface{}) (*RunResult, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	state := NewState(input)
	tracker := NewCostTracker(runID)
	startedAt := time.Now()

	r.emitter.Emit(emit.Event{RunID: runID, Msg: "run_start"})
	r.saveRun(ctx, store.RunRecord{RunID: runID, Status: store.StatusRunning, StartedAt: startedAt})

	var totalUsage model.Usage
	for i, node := range nodes {
		step := i + 1
		if err := ctx.Err(); err != nil {
			r.finishRun(ctx, runID, store.StatusFailed, tracker, startedAt)
			return nil, err
		}

		r.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: node.ID, Kind: string(node.Kind), Msg: "step_start"})
		stepStart := time.Now()

		usage, fallback, output, err := r.executeStep(ctx, node, state, tracker)
		elapsed := time.Since(stepStart)
		totalUsage = totalUsage.Add(usage)

		r.metrics.ObserveStep(node.Kind, elapsed, err)
		if fallback {
			r.metrics.ObserveFallback(node.Kind)
			r.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: node.ID, Kind: string(node.Kind), Msg: "fallback"})
		}
		r.recordStep(ctx, runID, step, node, output, fallback, elapsed, err)

		meta := map[string]interface{}{"duration_ms": elapsed.Milliseconds()}
		if err != nil {
			meta["error"] = err.Error()
			r.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: node.ID, Kind: string(node.Kind), Msg: "step_end", Meta: meta})
			r.emitter.Emit(emit.Event{RunID: runID, Msg: "run_end", Meta: map[string]interface{}{"error": err.Error()}})
			r.finishRun(ctx, runID, store.StatusFailed, tracker, startedAt)
			return nil, fmt.Errorf("step %d (%s): %w", step, node.ID, err)
		}
		r.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: node.ID, Kind: string(node.Kind), Msg: "step_end", Meta: meta})
		r.saveSnapshot(ctx, runID, step, state)
	}

	r.emitter.Emit(emit.Event{RunID: runID, Msg: "run_end", Meta: map[string]interface{}{"cost_usd": tracker.TotalCost()}})
	r.finishRun(ctx, runID, store.StatusSucceeded, tracker, startedAt)

	return &RunResult{
		RunID:   runID,
		State:   state,
		Usage:   model.NormalizeUsage(totalUsage),
		CostUSD: tracker.TotalCost(),
	}, nil
}

// executeStep dispatches one node to its executor and merges the
// resulting deltas into state.
func (r *Runner) executeStep(ctx context.Context, node *WorkflowNode, state *WorkflowState, tracker *CostTracker) (model.Usage, bool, interface{}, error) {
	switch node.Kind {
	case KindAgent:
		res, err := r.agent.Execute(ctx, node, state, r.creds)
		if err != nil {
			return model.Usage{}, false, nil, err
		}
		state.MergeVariables(res.VariableUpdates)
		state.AppendHistory(res.ChatHistoryUpdates)
		if res.Usage.TotalTokens > 0 {
			provider, modelName := ParseModelID(node.DataString("model"))
			tracker.Record(modelName, res.Usage, node.ID)
			r.metrics.ObserveProviderCall(provider, res.Usage.InputTokens, res.Usage.OutputTokens, nil)
		}
		for _, call := range res.ToolCalls {
			r.metrics.ObserveToolCall(call.Server, nil)
		}
		return res.Usage, res.Fallback, res.Value, nil

	case KindHTTP:
		resp, err := r.httpx.Execute(ctx, node, state)
		if err != nil {
			return model.Usage{}, false, nil, err
		}
		updates := map[string]interface{}{VarLastOutput: resp.Data}
		if name := node.DataString("outputVariable"); name != "" {
			updates[name] = resp.Data
		}
		state.MergeVariables(updates)
		return model.Usage{}, false, resp.Data, nil

	case KindMCP:
		res, err := r.mcp.Execute(ctx, node, state)
		if err != nil {
			return model.Usage{}, false, nil, err
		}
		if res.Err != nil {
			return model.Usage{}, false, nil, res.Err
		}
		updates := map[string]interface{}{VarLastOutput: res.Output}
		if name := node.DataString("outputVariable"); name != "" {
			updates[name] = res.Output
		}
		state.MergeVariables(updates)
		for _, call := range res.ToolCalls {
			r.metrics.ObserveToolCall(call.Server, nil)
		}
		return model.Usage{}, res.Fallback, res.Output, nil

	default:
		return model.Usage{}, false, nil, &ConfigError{Message: fmt.Sprintf("node %s has unsupported kind %q", node.ID, node.Kind)}
	}
}

func (r *Runner) recordStep(ctx context.Context, runID string, step int, node *WorkflowNode, output interface{}, fallback bool, elapsed time.Duration, err error) {
	if r.store == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	var raw json.RawMessage
	if output != nil {
		if data, merr := json.Marshal(output); merr == nil {
			raw = data
		}
	}
	rec := store.StepRecord{
		RunID:      runID,
		Step:       step,
		NodeID:     node.ID,
		Kind:       string(node.Kind),
		Status:     status,
		Output:     raw,
		Fallback:   fallback,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	}
	if serr := r.store.SaveStep(ctx, rec); serr != nil {
		log.Warn().Err(serr).Str("run", runID).Int("step", step).Msg("failed to persist step record")
	}
}

func (r *Runner) saveSnapshot(ctx context.Context, runID string, step int, state *WorkflowState) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.Warn().Err(err).Str("run", runID).Msg("failed to serialize state snapshot")
		return
	}
	if err := r.store.SaveSnapshot(ctx, runID, step, data); err != nil {
		log.Warn().Err(err).Str("run", runID).Msg("failed to persist state snapshot")
	}
}

func (r *Runner) saveRun(ctx context.Context, rec store.RunRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveRun(ctx, rec); err != nil {
		log.Warn().Err(err).Str("run", rec.RunID).Msg("failed to persist run record")
	}
}

func (r *Runner) finishRun(ctx context.Context, runID, status string, tracker *CostTracker, startedAt time.Time) {
	in, out := tracker.TokenUsage()
	r.saveRun(ctx, store.RunRecord{
		RunID:        runID,
		Status:       status,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      tracker.TotalCost(),
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	})
}
