package flow

import (
	"strings"
	"testing"
)

func TestPolicy(t *testing.T) {
	tests := []struct {
		name         string
		policy       Policy
		wantEnabled  bool
		wantForced   bool
	}{
		{"defaults", Policy{}, true, false},
		{"demo mode", Policy{DemoMode: true}, true, true},
		{"disabled", Policy{DisableFallback: true}, false, false},
		{"disable wins over demo", Policy{DemoMode: true, DisableFallback: true}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.FallbackEnabled(); got != tt.wantEnabled {
				t.Errorf("FallbackEnabled() = %v, want %v", got, tt.wantEnabled)
			}
			if got := tt.policy.ForceFallback(); got != tt.wantForced {
				t.Errorf("ForceFallback() = %v, want %v", got, tt.wantForced)
			}
		})
	}
}

func TestParseMockResponses(t *testing.T) {
	if got := ParseMockResponses(""); got != nil {
		t.Errorf("empty input should yield nil, got %#v", got)
	}

	m := ParseMockResponses(`{"nodeA": "fixed output", "default": "fallback"}`)
	if v, ok := m.Lookup("nodeA", ""); !ok || v != "fixed output" {
		t.Errorf("Lookup by id = %q, %v", v, ok)
	}
	if v, ok := m.Lookup("other", "nodeA"); !ok || v != "fixed output" {
		t.Errorf("Lookup by name = %q, %v", v, ok)
	}
	if v, ok := m.Lookup("other", "unnamed"); !ok || v != "fallback" {
		t.Errorf("Lookup default = %q, %v", v, ok)
	}

	// Non-JSON input becomes the default response.
	plain := ParseMockResponses("just text")
	if v, ok := plain.Lookup("anything", ""); !ok || v != "just text" {
		t.Errorf("plain string should become default, got %q, %v", v, ok)
	}
}

func TestMockResponsesLookupMiss(t *testing.T) {
	m := MockResponses{"nodeA": "x"}
	if _, ok := m.Lookup("nodeB", "nodeC"); ok {
		t.Error("Lookup should miss when no id, name, or default matches")
	}
	var nilMap MockResponses
	if _, ok := nilMap.Lookup("nodeA", ""); ok {
		t.Error("nil MockResponses should never match")
	}
}

func TestDetectTopic(t *testing.T) {
	tests := []struct {
		text string
		want Topic
	}{
		{"what is the stock price of AAPL", TopicFinance},
		{"compare product features before purchase", TopicProduct},
		{"history of the roman empire", TopicResearch},
	}
	for _, tt := range tests {
		if got := DetectTopic(tt.text); got != tt.want {
			t.Errorf("DetectTopic(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestFallbackSearchResults(t *testing.T) {
	data := FallbackSearchResults("AAPL stock price outlook")
	results, ok := data["results"].([]interface{})
	if !ok || len(results) == 0 {
		t.Fatalf("expected non-empty results array, got %#v", data)
	}
	first, ok := results[0].(map[string]interface{})
	if !ok {
		t.Fatalf("result entries should be objects, got %#v", results[0])
	}
	for _, key := range []string{"title", "url", "content"} {
		if _, ok := first[key]; !ok {
			t.Errorf("result missing %q key", key)
		}
	}
	if title, _ := first["title"].(string); !strings.Contains(title, "AAPL") {
		t.Errorf("finance result should mention the ticker, got %q", title)
	}
	if data["query"] != "AAPL stock price outlook" {
		t.Errorf("query should round-trip, got %#v", data["query"])
	}
}

func TestFallbackAgentResponse(t *testing.T) {
	got := FallbackAgentResponse("Financial Analysis Agent", "analyze MSFT earnings and stock trends")
	if !strings.Contains(got, "MSFT") {
		t.Errorf("analysis scenario should include the detected ticker, got %q", got)
	}

	unknown := FallbackAgentResponse("Unnamed Node", "anything")
	if !strings.Contains(unknown, "synthetic") {
		t.Errorf("unmatched role should return the generic placeholder, got %q", unknown)
	}

	// Determinism: same inputs, same output.
	if again := FallbackAgentResponse("Financial Analysis Agent", "analyze MSFT earnings and stock trends"); again != got {
		t.Error("fallback responses must be deterministic")
	}
}

func TestRegisterScenario(t *testing.T) {
	RegisterScenario("custom-role", func(topic Topic, hint string) string {
		return "custom scenario output"
	})
	got := FallbackAgentResponse("My Custom-Role Step", "input")
	if got != "custom scenario output" {
		t.Errorf("registered scenario not dispatched, got %q", got)
	}
}
