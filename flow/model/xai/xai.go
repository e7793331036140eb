// Package xai implements model.Adapter for xAI's Grok models.
//
// Grok mirrors OpenAI's remote-tool declaration but through the
// responses endpoint, with tools declared as {type: "mcp", server_label,
// server_url}. Tool outputs are not chained back for a second reasoning
// pass; the first response's text is final and tool invocations are
// recorded for observability only.
package xai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/tool"
)

const (
	defaultBaseURL = "https://api.x.ai/v1"
	defaultModel   = "grok-3"
)

// Adapter implements model.Adapter for Grok.
type Adapter struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// New creates a Grok adapter with the given API key.
func New(apiKey string) *Adapter {
	return &Adapter{apiKey: apiKey, baseURL: defaultBaseURL, client: http.DefaultClient}
}

// NewWithBaseURL creates an adapter against a non-default endpoint,
// mainly for tests.
func NewWithBaseURL(apiKey, baseURL string) *Adapter {
	return &Adapter{apiKey: apiKey, baseURL: baseURL, client: http.DefaultClient}
}

// Name implements model.Adapter.
func (a *Adapter) Name() string { return "xai" }

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	Tools []mcpToolDecl  `json:"tools,omitempty"`
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mcpToolDecl struct {
	Type        string `json:"type"`
	ServerLabel string `json:"server_label"`
	ServerURL   string `json:"server_url"`
}

type responsesOutput struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content,omitempty"`

		// mcp_call fields.
		ID        string          `json:"id,omitempty"`
		Name      string          `json:"name,omitempty"`
		Arguments string          `json:"arguments,omitempty"`
		Output    json.RawMessage `json:"output,omitempty"`
		Error     string          `json:"error,omitempty"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// decodeCallOutput normalizes an mcp_call output into a uniform value.
// The endpoint serializes tool output as a JSON string, so a first
// decode often yields a string that itself holds JSON; when that inner
// text parses, the parsed value wins.
func decodeCallOutput(raw json.RawMessage) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	if s, ok := v.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var inner interface{}
			if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
				return inner
			}
		}
	}
	return v
}

// Complete implements model.Adapter.
func (a *Adapter) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if ctx.Err() != nil {
		return model.Response{}, ctx.Err()
	}

	body := responsesRequest{Model: req.Model}
	if body.Model == "" {
		body.Model = defaultModel
	}
	for _, msg := range req.Messages {
		body.Input = append(body.Input, inputMessage{Role: msg.Role, Content: msg.Content})
	}
	for _, server := range req.Servers {
		body.Tools = append(body.Tools, mcpToolDecl{
			Type:        "mcp",
			ServerLabel: server.Name,
			ServerURL:   tool.ExpandEnvRefs(server.URL, req.Secrets),
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to encode xai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to create xai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return model.Response{}, fmt.Errorf("xai API error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Response{}, fmt.Errorf("failed to read xai response: %w", err)
	}

	var out responsesOutput
	if err := json.Unmarshal(respBody, &out); err != nil {
		return model.Response{}, fmt.Errorf("malformed xai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if out.Error != nil {
			return model.Response{}, fmt.Errorf("xai API error: %s", out.Error.Message)
		}
		return model.Response{}, fmt.Errorf("xai API returned status %d", resp.StatusCode)
	}

	var text strings.Builder
	var calls []tool.CallRecord
	for _, item := range out.Output {
		switch item.Type {
		case "message":
			for _, chunk := range item.Content {
				if chunk.Type == "output_text" {
					text.WriteString(chunk.Text)
				}
			}
		case "mcp_call":
			rec := tool.CallRecord{ID: item.ID, Tool: item.Name, Err: item.Error}
			if item.Arguments != "" {
				var args map[string]interface{}
				if err := json.Unmarshal([]byte(item.Arguments), &args); err == nil {
					rec.Arguments = args
				}
			}
			if len(item.Output) > 0 {
				rec.Output = decodeCallOutput(item.Output)
			}
			calls = append(calls, rec)
		}
	}

	return model.Response{
		Text:      text.String(),
		ToolCalls: calls,
		Usage: model.NormalizeUsage(model.Usage{
			InputTokens:  out.Usage.InputTokens,
			OutputTokens: out.Usage.OutputTokens,
			TotalTokens:  out.Usage.TotalTokens,
		}),
	}, nil
}
