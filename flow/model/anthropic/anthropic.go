// Package anthropic implements model.Adapter for Anthropic's Claude API.
//
// Claude executes tool round-trips itself: configured tool servers are
// passed as first-class remote tool declarations in a single call (the
// MCP connector), and the response interleaves text, tool-invocation,
// and tool-result blocks. The adapter partitions those blocks, pairs
// invocations with results by position, and returns the concatenated
// text plus the paired call records.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/tool"
)

const (
	defaultModel = "claude-3-5-sonnet-20241022"
	maxTokens    = 4096

	messagesEndpoint = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"
	mcpBeta          = "mcp-client-2025-04-04"
)

// Adapter implements model.Adapter for Claude.
type Adapter struct {
	apiKey string
	client *anthropic.Client
	http   *http.Client
}

// New creates a Claude adapter with the given API key.
func New(apiKey string) *Adapter {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Adapter{
		apiKey: apiKey,
		client: &client,
		http:   http.DefaultClient,
	}
}

// Name implements model.Adapter.
func (a *Adapter) Name() string { return "anthropic" }

// Complete implements model.Adapter.
//
// With tool servers configured, the servers are declared to the API as
// remote tools and Claude performs the tool round-trips in one call.
// Without servers, a plain messages call is made through the SDK.
func (a *Adapter) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if ctx.Err() != nil {
		return model.Response{}, ctx.Err()
	}
	if len(req.Servers) > 0 {
		return a.completeWithServers(ctx, req)
	}
	return a.completePlain(ctx, req)
}

func (a *Adapter) completePlain(ctx context.Context, req model.Request) (model.Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = defaultModel
	}

	system, turns := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelName),
		MaxTokens: maxTokens,
		Messages:  toMessageParams(turns),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic API error: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.Response{
		Text: text.String(),
		Usage: model.NormalizeUsage(model.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		}),
	}, nil
}

// splitSystem separates system messages from conversation turns;
// Anthropic expects the system prompt as a separate parameter.
func splitSystem(messages []model.Message) (string, []model.Message) {
	var system string
	var turns []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		} else {
			turns = append(turns, msg)
		}
	}
	return system, turns
}

func toMessageParams(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return out
}

// The MCP connector is a beta surface not yet covered by the SDK's
// typed API, so the request is issued directly against the messages
// endpoint with the beta header set.

type mcpServerDecl struct {
	Type               string `json:"type"`
	URL                string `json:"url"`
	Name               string `json:"name"`
	AuthorizationToken string `json:"authorization_token,omitempty"`
}

type mcpMessageRequest struct {
	Model      string            `json:"model"`
	MaxTokens  int               `json:"max_tokens"`
	System     string            `json:"system,omitempty"`
	Messages   []mcpMessageParam `json:"messages"`
	MCPServers []mcpServerDecl   `json:"mcp_servers"`
}

type mcpMessageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mcpContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	// mcp_tool_use fields.
	ID         string                 `json:"id,omitempty"`
	Name       string                 `json:"name,omitempty"`
	ServerName string                 `json:"server_name,omitempty"`
	Input      map[string]interface{} `json:"input,omitempty"`

	// mcp_tool_result fields.
	ToolUseID string          `json:"tool_use_id,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type mcpMessageResponse struct {
	Content []mcpContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) completeWithServers(ctx context.Context, req model.Request) (model.Response, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = defaultModel
	}

	system, turns := splitSystem(req.Messages)

	body := mcpMessageRequest{
		Model:     modelName,
		MaxTokens: maxTokens,
		System:    system,
	}
	for _, msg := range turns {
		role := msg.Role
		if role != model.RoleAssistant {
			role = model.RoleUser
		}
		body.Messages = append(body.Messages, mcpMessageParam{Role: role, Content: msg.Content})
	}
	for _, server := range req.Servers {
		body.MCPServers = append(body.MCPServers, mcpServerDecl{
			Type:               "url",
			URL:                tool.ExpandEnvRefs(server.URL, req.Secrets),
			Name:               server.Name,
			AuthorizationToken: server.AuthToken,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to encode anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, messagesEndpoint, bytes.NewReader(payload))
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to create anthropic request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	httpReq.Header.Set("anthropic-beta", mcpBeta)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic API error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to read anthropic response: %w", err)
	}

	var message mcpMessageResponse
	if err := json.Unmarshal(respBody, &message); err != nil {
		return model.Response{}, fmt.Errorf("malformed anthropic response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if message.Error != nil {
			return model.Response{}, fmt.Errorf("anthropic API error (%s): %s", message.Error.Type, message.Error.Message)
		}
		return model.Response{}, fmt.Errorf("anthropic API returned status %d", resp.StatusCode)
	}

	return partitionBlocks(message), nil
}

// partitionBlocks splits the response into text, tool-invocation, and
// tool-result blocks, pairing invocations with results by position.
func partitionBlocks(message mcpMessageResponse) model.Response {
	var text strings.Builder
	var uses []mcpContentBlock
	var results []mcpContentBlock

	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "mcp_tool_use":
			uses = append(uses, block)
		case "mcp_tool_result":
			results = append(results, block)
		}
	}

	calls := make([]tool.CallRecord, 0, len(uses))
	for i, use := range uses {
		rec := tool.CallRecord{
			ID:        use.ID,
			Tool:      use.Name,
			Server:    use.ServerName,
			Arguments: use.Input,
		}
		if i < len(results) {
			output, errText := normalizeToolResult(results[i])
			rec.Output = output
			rec.Err = errText
		}
		calls = append(calls, rec)
	}

	return model.Response{
		Text:      text.String(),
		ToolCalls: calls,
		Usage: model.NormalizeUsage(model.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		}),
	}
}

// normalizeToolResult handles the three result shapes the API produces:
// an error-flagged block, a list of content chunks (first chunk's text is
// used), or an already-uniform value.
func normalizeToolResult(block mcpContentBlock) (interface{}, string) {
	var chunks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(block.Content, &chunks); err == nil && len(chunks) > 0 {
		if block.IsError {
			return nil, chunks[0].Text
		}
		return chunks[0].Text, ""
	}

	var value interface{}
	if err := json.Unmarshal(block.Content, &value); err == nil {
		if block.IsError {
			return nil, fmt.Sprintf("%v", value)
		}
		return value, ""
	}

	if block.IsError {
		return nil, string(block.Content)
	}
	return string(block.Content), ""
}
