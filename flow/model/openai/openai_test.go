package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/tool"
)

type stubInvoker struct {
	calls []string
}

func (s *stubInvoker) CallTool(ctx context.Context, server *tool.ServerConfig, name string, args map[string]interface{}) (tool.CallRecord, error) {
	s.calls = append(s.calls, name)
	return tool.CallRecord{
		Tool:      name,
		Server:    server.Name,
		Arguments: args,
		Output:    map[string]interface{}{"hits": 3},
	}, nil
}

func TestAdapterComplete(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	adapter := NewWithBaseURL("sk-test", srv.URL, nil)
	resp, err := adapter.Complete(context.Background(), model.Request{
		Model:    "gpt-4o-mini",
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if resp.Text != "hello" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Usage.PromptTokens != 9 || resp.Usage.CompletionTokens != 3 || resp.Usage.TotalTokens != 12 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if captured["model"] != "gpt-4o-mini" {
		t.Errorf("model sent = %v", captured["model"])
	}
}

func TestAdapterToolLoop(t *testing.T) {
	var requests []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		_ = json.Unmarshal(body, &req)
		requests = append(requests, req)

		w.Header().Set("Content-Type", "application/json")
		if len(requests) == 1 {
			_, _ = w.Write([]byte(`{
				"id": "cmpl-1",
				"choices": [{"index": 0, "message": {
					"role": "assistant",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "search", "arguments": "{\"q\":\"go\"}"}}]
				}}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
			}`))
			return
		}
		_, _ = w.Write([]byte(`{
			"id": "cmpl-2",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "3 hits"}}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 4, "total_tokens": 24}
		}`))
	}))
	defer srv.Close()

	invoker := &stubInvoker{}
	adapter := NewWithBaseURL("sk-test", srv.URL, invoker)
	resp, err := adapter.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "search go"}},
		Servers: []*tool.ServerConfig{{
			Name: "websearch",
			URL:  "https://ws.example.com",
			Tool: &tool.Spec{Name: "search", Description: "web search"},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(requests) != 2 {
		t.Fatalf("round trips = %d, want 2", len(requests))
	}

	tools, ok := requests[0]["tools"].([]interface{})
	if !ok || len(tools) != 1 {
		t.Fatalf("tools declared = %#v", requests[0]["tools"])
	}
	decl := tools[0].(map[string]interface{})
	fn, ok := decl["function"].(map[string]interface{})
	if !ok || fn["name"] != "search" {
		t.Errorf("tool declaration = %#v", decl)
	}

	// The follow-up transcript carries the assistant's tool request plus
	// one tool-role message with the serialized outcome.
	msgs := requests[1]["messages"].([]interface{})
	last := msgs[len(msgs)-1].(map[string]interface{})
	if last["role"] != "tool" || last["tool_call_id"] != "call_1" {
		t.Errorf("tool message = %#v", last)
	}

	if invoker.calls[0] != "search" {
		t.Errorf("invoked tools = %v", invoker.calls)
	}
	if resp.Text != "3 hits" {
		t.Errorf("Text = %q", resp.Text)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Server != "websearch" {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Usage.PromptTokens != 30 || resp.Usage.CompletionTokens != 9 {
		t.Errorf("summed usage = %+v", resp.Usage)
	}
}
