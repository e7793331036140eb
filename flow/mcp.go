package flow

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/flowline-ai/flowline/flow/tool"
)

// Default targets used when no state variable holds anything usable.
const (
	defaultResearchURL   = "https://example.com"
	defaultResearchQuery = "latest developments in artificial intelligence"
)

// NamedServerFunc is a per-server adapter for generic (non web-research)
// tool servers, dispatched on server name.
type NamedServerFunc func(ctx context.Context, server *tool.ServerConfig, node *WorkflowNode, state *WorkflowState) (interface{}, tool.CallRecord, error)

// MCPExecutor executes one step's declared remote tool-server
// interactions and normalizes provider-specific output into a uniform
// result envelope.
type MCPExecutor struct {
	resolver tool.Resolver
	rpc      *tool.RPCClient
	policy   Policy
	http     *http.Client
	adapters map[string]NamedServerFunc
}

// NewMCPExecutor creates an MCP executor. The resolver maps symbolic
// server identifiers to connection descriptors.
func NewMCPExecutor(resolver tool.Resolver, policy Policy) *MCPExecutor {
	e := &MCPExecutor{
		resolver: resolver,
		rpc:      tool.NewRPCClient(nil),
		policy:   policy,
		http:     http.DefaultClient,
		adapters: map[string]NamedServerFunc{},
	}
	e.RegisterAdapter("deepwiki", e.docsQAAdapter)
	return e
}

// RegisterAdapter installs a named-server adapter. Adapters registered
// later override earlier ones with the same name.
func (e *MCPExecutor) RegisterAdapter(name string, fn NamedServerFunc) {
	e.adapters[name] = fn
}

// Execute runs the step against every resolved server.
//
// A step with no resolvable servers returns a result whose Err field is
// set (rather than a Go error) so the caller decides whether to halt the
// run. Live backend failures return an error unless the fallback policy
// is enabled, in which case deterministic synthetic data is substituted
// and the result is flagged.
func (e *MCPExecutor) Execute(ctx context.Context, node *WorkflowNode, state *WorkflowState) (*ExecutionResult, error) {
	servers, err := e.resolveServers(ctx, node)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return &ExecutionResult{
			Err: &ConfigError{Message: fmt.Sprintf("step %s has no tool servers", node.ID), Cause: ErrNoServerConfigured},
		}, nil
	}

	result := &ExecutionResult{}
	for _, server := range servers {
		if err := e.executeServer(ctx, server, node, state, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// resolveServers prefers a single symbolic identifier, then an
// identifier list, then inline configs (including migrated legacy
// payloads).
func (e *MCPExecutor) resolveServers(ctx context.Context, node *WorkflowNode) ([]*tool.ServerConfig, error) {
	data := tool.MigrateLegacy(node.Data)

	if id, ok := data["mcpServer"].(string); ok && id != "" {
		cfg, err := e.resolver.Resolve(ctx, id)
		if err != nil {
			return nil, &UpstreamError{Message: "tool server lookup failed", Cause: err}
		}
		if cfg == nil {
			return nil, nil
		}
		return []*tool.ServerConfig{cfg}, nil
	}

	if ids := toStringSlice(data["mcpServers"]); len(ids) > 0 {
		configs, err := e.resolver.ResolveMany(ctx, ids)
		if err != nil {
			return nil, &UpstreamError{Message: "tool server lookup failed", Cause: err}
		}
		return configs, nil
	}

	if raw, ok := data["toolServers"].([]interface{}); ok {
		return tool.ParseServerConfigs(raw), nil
	}
	return nil, nil
}

func (e *MCPExecutor) executeServer(ctx context.Context, server *tool.ServerConfig, node *WorkflowNode, state *WorkflowState, result *ExecutionResult) error {
	switch server.Capability {
	case tool.CapabilityWebResearch:
		return e.executeResearch(ctx, server, node, state, result)
	default:
		adapter, ok := e.adapters[server.Name]
		if !ok {
			return &ConfigError{
				Message: "unsupported tool server",
				Cause:   &tool.NotImplementedError{Server: server.Name, URL: server.URL},
			}
		}
		data, rec, err := adapter(ctx, server, node, state)
		if err != nil {
			return err
		}
		result.Results = append(result.Results, ServerEnvelope{
			Server:  server.Name,
			Tool:    rec.Tool,
			Success: rec.Err == "",
			Data:    data,
			Error:   rec.Err,
		})
		result.ToolCalls = append(result.ToolCalls, rec)
		result.Output = data
		return nil
	}
}

// executeResearch drives a web-research server: pick the action, resolve
// the target from node config or state, invoke the backend, and apply
// field extraction. Failures fall back to synthetic search data when the
// policy allows.
func (e *MCPExecutor) executeResearch(ctx context.Context, server *tool.ServerConfig, node *WorkflowNode, state *WorkflowState, result *ExecutionResult) error {
	action := node.DataString("action")
	if action == "" {
		action = sniffAction(state.VarString(VarLastOutput) + " " + state.VarString(VarInput))
	}
	target := e.resolveTarget(action, node, state)

	var data map[string]interface{}
	var err error
	if e.policy.ForceFallback() {
		data = FallbackSearchResults(target)
		result.Fallback = true
	} else {
		client := tool.NewResearchClient(tool.ExpandEnvRefs(server.URL, nil), server.AuthToken, e.http)
		data, err = client.Do(ctx, action, target)
		if err != nil {
			if !e.policy.FallbackEnabled() {
				return &UpstreamError{Message: fmt.Sprintf("web research action %q failed", action), Cause: err}
			}
			log.Warn().Err(err).Str("action", action).Str("server", server.Name).
				Msg("research backend failed; substituting fallback data")
			data = FallbackSearchResults(target)
			result.Fallback = true
		}
	}

	extracted := ExtractField(asInterface(data), node.DataString("extractField"), node.DataString("customPath"))

	result.Results = append(result.Results, ServerEnvelope{
		Server:  server.Name,
		Tool:    action,
		Success: true,
		Data:    extracted,
	})
	result.ToolCalls = append(result.ToolCalls, tool.CallRecord{
		Tool:      action,
		Server:    server.Name,
		Arguments: map[string]interface{}{"target": target},
		Output:    extracted,
	})
	result.Output = extracted
	return nil
}

// resolveTarget picks the URL or query for a research action: an
// explicit templated field first, then heuristics over lastOutput and
// input (URL-shaped strings prefer URL slots), then the documented
// defaults.
func (e *MCPExecutor) resolveTarget(action string, node *WorkflowNode, state *WorkflowState) string {
	wantsURL := action != tool.ActionSearch

	if explicit := node.DataString("url"); wantsURL && explicit != "" {
		return Substitute(explicit, state)
	}
	if explicit := node.DataString("query"); !wantsURL && explicit != "" {
		return Substitute(explicit, state)
	}

	for _, candidate := range []string{state.VarString(VarLastOutput), state.VarString(VarInput)} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if wantsURL {
			if url := firstURL(candidate); url != "" {
				return url
			}
		} else if !isURL(candidate) {
			return candidate
		}
	}

	if wantsURL {
		return defaultResearchURL
	}
	return defaultResearchQuery
}

// docsQAAdapter asks a documentation Q&A server a question derived from
// the current state, over the standard tools/call protocol.
func (e *MCPExecutor) docsQAAdapter(ctx context.Context, server *tool.ServerConfig, node *WorkflowNode, state *WorkflowState) (interface{}, tool.CallRecord, error) {
	question := Substitute(node.DataString("question"), state)
	if question == "" {
		question = state.VarString(VarLastOutput)
	}
	if question == "" {
		question = state.VarString(VarInput)
	}

	rec, err := e.rpc.CallTool(ctx, server, "ask_question", map[string]interface{}{
		"question": question,
	})
	if err != nil {
		if !e.policy.FallbackEnabled() {
			return nil, rec, &UpstreamError{Message: "documentation server call failed", Cause: err}
		}
		// Contain the failure in the call record; the envelope reports it.
		return nil, rec, nil
	}
	return rec.Output, rec, nil
}

// sniffAction keyword-sniffs a web-research sub-tool from free text.
// Best-effort dispatch only; substring matches like "site structure" are
// not a guaranteed-correct classifier.
func sniffAction(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "search", "find", "look up", "lookup"):
		return tool.ActionSearch
	case containsAny(lower, "crawl", "entire site", "all pages"):
		return tool.ActionCrawl
	case containsAny(lower, "sitemap", "structure", "map of"):
		return tool.ActionMap
	case firstURL(text) != "":
		return tool.ActionScrape
	default:
		return tool.ActionSearch
	}
}

var urlPrefixes = []string{"http://", "https://"}

func isURL(s string) bool {
	for _, p := range urlPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// firstURL pulls the first URL-shaped token out of text, or "".
func firstURL(text string) string {
	for _, field := range strings.Fields(text) {
		if isURL(field) {
			return strings.TrimRight(field, ".,;)")
		}
	}
	return ""
}

func toStringSlice(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// asInterface widens a typed map so extraction sees the same shape the
// JSON decoder produces.
func asInterface(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}
