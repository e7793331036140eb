// Package flow provides the workflow node execution engine: the
// contract each step executor satisfies, the state-update discipline
// threading a shared execution state between steps, and the degraded-mode
// fallback policy that keeps multi-step pipelines resilient to partial
// failure.
package flow

import "github.com/flowline-ai/flowline/flow/tool"

// NodeKind identifies which executor handles a node.
type NodeKind string

const (
	// KindAgent is an LLM agent step.
	KindAgent NodeKind = "agent"

	// KindHTTP is a raw outbound HTTP request step.
	KindHTTP NodeKind = "http"

	// KindMCP is a remote tool-server interaction step.
	KindMCP NodeKind = "mcp"
)

// WorkflowNode is one unit of pipeline work: a declared kind plus a
// free-form configuration payload whose keys depend on the kind
// (instructions and model for agent steps, method/url/headers/body for
// HTTP steps, action and extraction field for MCP steps).
//
// Nodes are read-only inputs constructed by the graph layer; executors
// never modify them.
type WorkflowNode struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name,omitempty"`
	Kind NodeKind               `json:"kind"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// DataString returns the string value under key, or "" when absent or
// not a string.
func (n *WorkflowNode) DataString(key string) string {
	if v, ok := n.Data[key].(string); ok {
		return v
	}
	return ""
}

// DataBool returns the boolean value under key. String forms "true"/"1"
// are accepted because payloads frequently arrive JSON-decoded from
// editors that stringify flags.
func (n *WorkflowNode) DataBool(key string) bool {
	switch v := n.Data[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// DataStringSlice returns the list of strings under key, tolerating both
// []string and JSON-decoded []interface{} forms.
func (n *WorkflowNode) DataStringSlice(key string) []string {
	switch v := n.Data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// DataMap returns the map value under key, or nil.
func (n *WorkflowNode) DataMap(key string) map[string]interface{} {
	if v, ok := n.Data[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// ServerEnvelope is the per-server entry in an MCP step's result.
type ServerEnvelope struct {
	Server  string      `json:"server"`
	Tool    string      `json:"tool"`
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ExecutionResult is the uniform result envelope produced by the MCP
// executor: one envelope per contacted server, the step output, and the
// accumulated tool-call records. Fallback marks results synthesized by
// degraded mode. Err carries resolution failures as an error result so
// the caller decides whether to halt the run.
type ExecutionResult struct {
	Results   []ServerEnvelope  `json:"results"`
	Output    interface{}       `json:"output"`
	ToolCalls []tool.CallRecord `json:"toolCalls"`
	Fallback  bool              `json:"_fallback,omitempty"`
	Err       error             `json:"-"`
}
