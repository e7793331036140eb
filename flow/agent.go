package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog/log"

	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/model/anthropic"
	"github.com/flowline-ai/flowline/flow/model/google"
	"github.com/flowline-ai/flowline/flow/model/openai"
	"github.com/flowline-ai/flowline/flow/model/openrouter"
	"github.com/flowline-ai/flowline/flow/model/xai"
	"github.com/flowline-ai/flowline/flow/tool"
)

// Credentials maps provider names to API keys. Passed by value per call;
// the executor never retains key material between steps.
type Credentials map[string]string

// Get returns the key for a provider, honoring common aliases.
func (c Credentials) Get(provider string) string {
	if key, ok := c[provider]; ok {
		return key
	}
	switch provider {
	case "google":
		return c["gemini"]
	case "gemini":
		return c["google"]
	case "xai":
		return c["grok"]
	case "grok":
		return c["xai"]
	}
	return ""
}

// Empty reports whether no provider has a key at all.
func (c Credentials) Empty() bool {
	for _, key := range c {
		if key != "" {
			return false
		}
	}
	return true
}

// SecretRefs exposes provider keys under env-style names, so tool
// server URLs carrying ${OPENAI_API_KEY}-shaped placeholders resolve
// from per-call credentials without reading the process environment.
func (c Credentials) SecretRefs() map[string]string {
	refs := make(map[string]string, len(c))
	for provider, key := range c {
		if key == "" {
			continue
		}
		refs[strings.ToUpper(provider)+"_API_KEY"] = key
	}
	return refs
}

// AgentResult is the outcome of one agent step, expressed as state
// deltas for the caller to merge rather than direct mutations.
type AgentResult struct {
	// Value is the shaped model output: a string, or decoded JSON when
	// structured output was requested and parsing succeeded.
	Value interface{}

	// ToolCalls records every remote tool invocation the completion
	// issued, for observability.
	ToolCalls []tool.CallRecord

	// VariableUpdates holds the variables to merge into workflow state,
	// always including lastOutput.
	VariableUpdates map[string]interface{}

	// ChatHistoryUpdates holds the turns to append to the conversation.
	ChatHistoryUpdates []model.Message

	// Usage is the normalized token accounting for the completion.
	Usage model.Usage

	// Fallback marks results produced from synthetic data instead of a
	// live provider call.
	Fallback bool
}

// AdapterFactory builds a provider adapter for one call. The returned
// closer releases any per-call resources and may be nil.
type AdapterFactory func(ctx context.Context, provider, key string, invoker model.ToolInvoker) (model.Adapter, func() error, error)

// AgentExecutor runs LLM-backed workflow steps: prompt templating, tool
// server resolution, provider dispatch, output shaping, and degraded
// operation.
type AgentExecutor struct {
	resolver tool.Resolver
	rpc      *tool.RPCClient
	policy   Policy
	mocks    MockResponses
	factory  AdapterFactory
}

// NewAgentExecutor creates an agent executor. mocks may be nil.
func NewAgentExecutor(resolver tool.Resolver, policy Policy, mocks MockResponses) *AgentExecutor {
	e := &AgentExecutor{
		resolver: resolver,
		rpc:      tool.NewRPCClient(nil),
		policy:   policy,
		mocks:    mocks,
	}
	e.factory = e.defaultFactory
	return e
}

// SetAdapterFactory overrides provider adapter construction. Used to
// inject mock adapters in tests.
func (e *AgentExecutor) SetAdapterFactory(factory AdapterFactory) {
	e.factory = factory
}

// Execute runs one agent step and returns its state deltas.
func (e *AgentExecutor) Execute(ctx context.Context, node *WorkflowNode, state *WorkflowState, creds Credentials) (*AgentResult, error) {
	prompt := Substitute(node.DataString("prompt"), state)
	if prompt == "" {
		prompt = state.VarString(VarInput)
	}

	// Forced fallback needs no keys and wins over everything else.
	if e.policy.ForceFallback() {
		return e.shapeResult(node, prompt, FallbackAgentResponse(node.Name, prompt), nil, model.Usage{}, true), nil
	}

	if creds.Empty() {
		return nil, &ConfigError{Message: "agent step " + node.ID, Cause: ErrMissingCredentials}
	}

	// Mock overrides short-circuit before any provider work.
	if raw, ok := e.mocks.Lookup(node.ID, node.Name); ok {
		return e.shapeResult(node, prompt, raw, nil, model.Usage{}, false), nil
	}

	servers, err := e.resolveServers(ctx, node)
	if err != nil {
		return nil, err
	}

	provider, modelName := ParseModelID(node.DataString("model"))
	key := creds.Get(provider)
	if key == "" {
		return nil, e.wrapFailure(provider, &NoAPIKeyError{Provider: provider})
	}

	adapter, closer, err := e.factory(ctx, provider, key, e.rpc)
	if err != nil {
		return nil, e.wrapFailure(provider, err)
	}
	if closer != nil {
		defer func() {
			if cerr := closer(); cerr != nil {
				log.Warn().Err(cerr).Str("provider", provider).Msg("adapter close failed")
			}
		}()
	}
	if provider == "openrouter" {
		modelName = openrouter.ResolveAlias(modelName)
	}

	resp, err := adapter.Complete(ctx, model.Request{
		Model:    modelName,
		Messages: e.buildMessages(node, state, prompt),
		Servers:  servers,
		Secrets:  creds.SecretRefs(),
	})
	if err != nil {
		if e.policy.FallbackEnabled() {
			log.Warn().Err(err).Str("provider", provider).Str("node", node.ID).
				Msg("provider call failed; substituting fallback response")
			return e.shapeResult(node, prompt, FallbackAgentResponse(node.Name, prompt), nil, model.Usage{}, true), nil
		}
		return nil, e.wrapFailure(provider, err)
	}

	return e.shapeResult(node, prompt, resp.Text, resp.ToolCalls, model.NormalizeUsage(resp.Usage), false), nil
}

// resolveServers mirrors the MCP executor's resolution order: symbolic
// identifier(s) through the resolver, then inline configs.
func (e *AgentExecutor) resolveServers(ctx context.Context, node *WorkflowNode) ([]*tool.ServerConfig, error) {
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

// buildMessages assembles the conversation: optional system prompt,
// prior chat history when the step opts in, then the user prompt.
func (e *AgentExecutor) buildMessages(node *WorkflowNode, state *WorkflowState, prompt string) []model.Message {
	var messages []model.Message
	if system := Substitute(node.DataString("systemPrompt"), state); system != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: system})
	}
	if node.DataBool("includeChatHistory") {
		messages = append(messages, state.ChatHistory...)
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: prompt})
	return messages
}

// shapeResult applies output shaping and packages the state deltas.
func (e *AgentExecutor) shapeResult(node *WorkflowNode, prompt, text string, calls []tool.CallRecord, usage model.Usage, fallback bool) *AgentResult {
	value := shapeOutput(node, text)

	updates := map[string]interface{}{VarLastOutput: value}
	if name := node.DataString("outputVariable"); name != "" {
		updates[name] = value
	}

	return &AgentResult{
		Value:     value,
		ToolCalls: calls,
		VariableUpdates: updates,
		ChatHistoryUpdates: []model.Message{
			{Role: model.RoleUser, Content: prompt},
			{Role: model.RoleAssistant, Content: text},
		},
		Usage:    usage,
		Fallback: fallback,
	}
}

// shapeOutput decodes structured output when the step requests it. A
// failed parse is repaired and retried; if that also fails the raw text
// is kept and the failure only logged, so imperfect model output never
// sinks a run.
func shapeOutput(node *WorkflowNode, text string) interface{} {
	structured := node.DataBool("structuredOutput") || strings.EqualFold(node.DataString("outputFormat"), "json")
	if !structured {
		return text
	}

	var value interface{}
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		return value
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), &value); err == nil {
			return value
		}
	}
	log.Warn().Str("node", node.ID).Msg("structured output requested but response is not parseable JSON; keeping raw text")
	return text
}

// wrapFailure classifies a provider failure into an AgentError with
// guidance the end user can act on.
func (e *AgentExecutor) wrapFailure(provider string, err error) error {
	lower := strings.ToLower(err.Error())
	switch {
	case isNoAPIKey(err):
		return &AgentError{
			Kind:     ErrKindNoProvider,
			Provider: provider,
			Guidance: err.Error() + "; set the key in the environment or workflow settings",
			Cause:    err,
		}
	case containsAny(lower, "api key", "authentication", "unauthorized", "401"):
		return &AgentError{
			Kind:     ErrKindAPIKey,
			Provider: provider,
			Guidance: "the provider rejected the API key; verify the credential is valid and not expired",
			Cause:    err,
		}
	case containsAny(lower, "rate limit", "429", "too many requests"):
		return &AgentError{
			Kind:     ErrKindRateLimit,
			Provider: provider,
			Guidance: "the provider is throttling requests; wait and retry, or switch models",
			Cause:    err,
		}
	default:
		return &AgentError{Kind: ErrKindGeneric, Provider: provider, Cause: err}
	}
}

func isNoAPIKey(err error) bool {
	var noKey *NoAPIKeyError
	return errors.As(err, &noKey)
}

// ParseModelID splits a "provider/model" identifier. A bare model name
// defaults to the openai provider.
func ParseModelID(id string) (provider, modelName string) {
	if id == "" {
		return "openai", "gpt-4o-mini"
	}
	parts := strings.SplitN(id, "/", 2)
	if len(parts) == 1 {
		return "openai", parts[0]
	}
	return normalizeProvider(parts[0]), parts[1]
}

func normalizeProvider(name string) string {
	switch strings.ToLower(name) {
	case "gemini":
		return "google"
	case "grok":
		return "xai"
	default:
		return strings.ToLower(name)
	}
}

// defaultFactory builds the real provider adapters.
func (e *AgentExecutor) defaultFactory(ctx context.Context, provider, key string, invoker model.ToolInvoker) (model.Adapter, func() error, error) {
	switch provider {
	case "anthropic":
		return anthropic.New(key), nil, nil
	case "openai":
		return openai.New(key, invoker), nil, nil
	case "google":
		adapter, err := google.New(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter.Close, nil
	case "xai":
		return xai.New(key), nil, nil
	case "openrouter":
		return openrouter.New(key), nil, nil
	default:
		return nil, nil, &NoAPIKeyError{Provider: provider}
	}
}
