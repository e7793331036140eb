// Package emit provides pluggable observability for workflow runs.
// Step executions, provider calls, tool calls, and fallbacks become
// Events delivered to an Emitter backend.
package emit

// Event is one observability event from a workflow run.
type Event struct {
	// RunID identifies the workflow execution.
	RunID string

	// Step is the 1-indexed step number. Zero for run-level events.
	Step int

	// NodeID identifies the step's node. Empty for run-level events.
	NodeID string

	// Kind is the node kind ("agent", "http", "mcp"). Empty for
	// run-level events.
	Kind string

	// Msg names the event: "run_start", "run_end", "step_start",
	// "step_end", "provider_call", "tool_call", "fallback", "error".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "duration_ms", "error", "provider", "model", "tokens_in",
	// "tokens_out", "cost_usd", "server", "tool".
	Meta map[string]interface{}
}

// Emitter receives workflow events. Implementations must be safe for
// concurrent use and must not panic; backend failures are handled
// internally so they never sink a run.
type Emitter interface {
	Emit(event Event)
}

// NullEmitter discards all events.
type NullEmitter struct{}

func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

func (n *NullEmitter) Emit(event Event) {}
