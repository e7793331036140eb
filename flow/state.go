package flow

import (
	"encoding/json"
	"fmt"

	"github.com/flowline-ai/flowline/flow/model"
)

// Well-known state variable names. Every run's state carries at least
// these two.
const (
	// VarInput holds the run's original input.
	VarInput = "input"

	// VarLastOutput holds the most recently produced step output. After
	// step N it always equals the output surfaced by step N.
	VarLastOutput = "lastOutput"
)

// WorkflowState is the execution context threaded through sequential
// step invocations: named variables plus an append-only chat history.
//
// State is mutable by merge only. Executors return proposed variable
// updates and chat-history appends; the pipeline driver applies them
// between steps. Executors must never reach into a state and overwrite
// unrelated keys, and no two executors touch the same state
// concurrently (sequential pipeline by construction).
type WorkflowState struct {
	Variables   map[string]interface{} `json:"variables"`
	ChatHistory []model.Message        `json:"chatHistory,omitempty"`
}

// NewState creates a run's initial state with the given input. Both
// required variables are present from the start.
func NewState(input interface{}) *WorkflowState {
	return &WorkflowState{
		Variables: map[string]interface{}{
			VarInput:      input,
			VarLastOutput: nil,
		},
	}
}

// Var returns the named variable, or nil.
func (s *WorkflowState) Var(name string) interface{} {
	if s == nil || s.Variables == nil {
		return nil
	}
	return s.Variables[name]
}

// VarString returns the named variable rendered as a string. Non-string
// values are JSON-encoded; nil yields "".
func (s *WorkflowState) VarString(name string) string {
	return stringifyValue(s.Var(name))
}

// MergeVariables applies a merge patch to the variable map. Only keys
// present in updates change; everything else is untouched.
func (s *WorkflowState) MergeVariables(updates map[string]interface{}) {
	if len(updates) == 0 {
		return
	}
	if s.Variables == nil {
		s.Variables = make(map[string]interface{}, len(updates))
	}
	for k, v := range updates {
		s.Variables[k] = v
	}
}

// AppendHistory appends messages to the chat history. History is
// append-only; existing entries are never rewritten.
func (s *WorkflowState) AppendHistory(messages []model.Message) {
	s.ChatHistory = append(s.ChatHistory, messages...)
}

// Snapshot returns a deep copy of the state via JSON round-trip, used
// for auditable per-step records. Values that do not marshal to JSON
// (channels, functions) are not supported as state variables.
func (s *WorkflowState) Snapshot() (*WorkflowState, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	var copied WorkflowState
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &copied, nil
}

// stringifyValue renders a variable value for substitution into text.
func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; print integers without the
		// trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
