// Package model provides the provider-abstraction layer that normalizes
// heterogeneous LLM backends into one calling convention.
//
// Each provider family has its own adapter package (anthropic, openai,
// google, xai, openrouter) implementing Adapter. Provider-specific
// request/response translation, tool-calling conventions, and usage
// normalization live entirely inside the adapters; callers only ever see
// the normalized Request/Response shapes.
package model

import (
	"context"

	"github.com/flowline-ai/flowline/flow/tool"
)

// Adapter is the uniform completion interface implemented once per
// provider family.
//
// Tool-calling conventions differ per provider and are handled inside
// the adapter: some providers execute tool round-trips server-side from
// declared tool servers, others require the adapter to run a client-side
// tool loop, and some ignore tools entirely.
type Adapter interface {
	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// Complete sends the request to the provider and returns the
	// normalized response. Implementations must respect context
	// cancellation and must not retain key material past the call.
	Complete(ctx context.Context, req Request) (Response, error)
}

// ToolInvoker executes one remote tool call against a resolved server.
// Adapters that run a client-side tool loop use it to bridge
// model-requested calls to tool servers. tool.RPCClient satisfies it.
type ToolInvoker interface {
	CallTool(ctx context.Context, server *tool.ServerConfig, name string, args map[string]interface{}) (tool.CallRecord, error)
}

// Message is a single role-tagged turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Standard role constants, aligned with the conventions of the major
// providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is the normalized completion request handed to an adapter.
type Request struct {
	// Model is the provider-local model name (already stripped of any
	// provider prefix).
	Model string

	// Messages is the conversation to complete.
	Messages []Message

	// Servers lists resolved tool servers the model may call. Empty means
	// a plain completion. Adapters without tool support ignore this.
	Servers []*tool.ServerConfig

	// Secrets resolves ${NAME} placeholders in tool server URLs from
	// per-call key material, checked before the process environment.
	Secrets map[string]string
}

// Response is the normalized completion output.
type Response struct {
	// Text is the model's textual answer. For providers that interleave
	// tool use with text, it is the concatenation of all text blocks.
	Text string

	// ToolCalls records every tool invocation issued during the
	// completion, successful or not, for observability.
	ToolCalls []tool.CallRecord

	// Usage is the normalized token accounting for the whole completion,
	// including any tool round-trips.
	Usage Usage
}

// Usage is the normalized token-accounting record. Providers report
// different shapes (prompt/completion, input/output, token-count
// metadata); adapters translate into this one record.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Input/Output mirror Prompt/Completion under the naming used by
	// providers that report input_tokens/output_tokens.
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the field-wise sum of u and other. Used when a completion
// is split into a tool round-trip plus a follow-up round-trip.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
	}
}

// NormalizeUsage fills the alias fields from whichever naming the
// provider populated, so both views are always consistent.
func NormalizeUsage(u Usage) Usage {
	if u.PromptTokens == 0 {
		u.PromptTokens = u.InputTokens
	}
	if u.CompletionTokens == 0 {
		u.CompletionTokens = u.OutputTokens
	}
	u.InputTokens = u.PromptTokens
	u.OutputTokens = u.CompletionTokens
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}
