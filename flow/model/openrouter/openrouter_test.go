package openrouter

import "testing"

func TestResolveAlias(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "openai/gpt-4o-mini"},
		{"gpt-4o", "openai/gpt-4o"},
		{"claude", "anthropic/claude-3.5-sonnet"},
		{"llama", "meta-llama/llama-3.1-70b-instruct"},
		{"deepseek", "deepseek/deepseek-chat"},
		{"mistralai/mistral-large", "mistralai/mistral-large"},
		{"some/unknown-model", "some/unknown-model"},
	}
	for _, tt := range tests {
		if got := ResolveAlias(tt.in); got != tt.want {
			t.Errorf("ResolveAlias(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
