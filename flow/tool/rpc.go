package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

// RPCClient issues remote tool calls against tool servers using the
// JSON-RPC 2.0 "tools/call" convention:
//
//	POST <server URL>
//	{"jsonrpc": "2.0", "id": "<unique>", "method": "tools/call",
//	 "params": {"name": "<tool>", "arguments": {...}}}
//
// Servers may answer with a standard JSON-RPC envelope ({"result": ...})
// or with a bare payload; both are accepted. Transport failures, non-2xx
// statuses, and malformed JSON become per-call errors and never abort a
// batch of sibling calls.
type RPCClient struct {
	client *http.Client
}

// NewRPCClient creates an RPCClient. A nil httpClient uses
// http.DefaultClient; inner calls inherit its default timeout.
func NewRPCClient(httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RPCClient{client: httpClient}
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      string    `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// CallTool invokes the named operation on the given server and returns a
// CallRecord capturing the outcome. The record's Err field is set on
// failure; the error return mirrors it so single-call callers can branch
// without inspecting the record.
func (c *RPCClient) CallTool(ctx context.Context, server *ServerConfig, name string, args map[string]interface{}) (CallRecord, error) {
	rec := CallRecord{
		ID:        uuid.NewString(),
		Tool:      name,
		Server:    server.Name,
		Arguments: args,
	}

	url := ExpandEnvRefs(server.URL, nil)

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      rec.ID,
		Method:  "tools/call",
		Params:  rpcParams{Name: name, Arguments: args},
	})
	if err != nil {
		rec.Err = fmt.Sprintf("failed to encode tool call: %v", err)
		return rec, fmt.Errorf("failed to encode tool call %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		rec.Err = fmt.Sprintf("failed to create request: %v", err)
		return rec, fmt.Errorf("failed to create tool call request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if server.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+ExpandEnvRefs(server.AuthToken, nil))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		rec.Err = fmt.Sprintf("tool call failed: %v", err)
		return rec, fmt.Errorf("tool call %s to %s failed: %w", name, server.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		rec.Err = fmt.Sprintf("failed to read response: %v", err)
		return rec, fmt.Errorf("failed to read tool call response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rec.Err = fmt.Sprintf("server returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		return rec, fmt.Errorf("tool call %s to %s returned status %d", name, server.Name, resp.StatusCode)
	}

	rec.Output = decodeToolResult(respBody)
	return rec, nil
}

// decodeToolResult accepts either a JSON-RPC envelope or a bare payload.
// Non-JSON bodies are kept as raw text.
func decodeToolResult(body []byte) interface{} {
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Result) > 0 {
		var result interface{}
		if err := json.Unmarshal(envelope.Result, &result); err == nil {
			return result
		}
	}

	var bare interface{}
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare
	}
	return string(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
