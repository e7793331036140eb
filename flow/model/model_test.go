package model

import (
	"context"
	"errors"
	"testing"
)

func TestNormalizeUsage(t *testing.T) {
	tests := []struct {
		name string
		in   Usage
		want Usage
	}{
		{
			"prompt naming fills aliases",
			Usage{PromptTokens: 10, CompletionTokens: 5},
			Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, InputTokens: 10, OutputTokens: 5},
		},
		{
			"input naming fills aliases",
			Usage{InputTokens: 7, OutputTokens: 3},
			Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10, InputTokens: 7, OutputTokens: 3},
		},
		{
			"reported total is kept",
			Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 20},
			Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 20, InputTokens: 10, OutputTokens: 5},
		},
		{
			"zero stays zero",
			Usage{},
			Usage{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUsage(tt.in); got != tt.want {
				t.Errorf("NormalizeUsage(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, InputTokens: 10, OutputTokens: 5}
	b := Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3, InputTokens: 2, OutputTokens: 1}
	want := Usage{PromptTokens: 12, CompletionTokens: 6, TotalTokens: 18, InputTokens: 12, OutputTokens: 6}
	if got := a.Add(b); got != want {
		t.Errorf("Add = %+v, want %+v", got, want)
	}
}

func TestMockAdapterSequencing(t *testing.T) {
	mock := &MockAdapter{Responses: []Response{
		{Text: "first"},
		{Text: "second"},
	}}
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second", "second"} {
		resp, err := mock.Complete(ctx, Request{Model: "m"})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if resp.Text != want {
			t.Errorf("Text = %q, want %q", resp.Text, want)
		}
	}
	if mock.CallCount() != 4 {
		t.Errorf("CallCount = %d", mock.CallCount())
	}

	mock.Reset()
	if mock.CallCount() != 0 {
		t.Error("Reset should clear history")
	}
	resp, _ := mock.Complete(ctx, Request{})
	if resp.Text != "first" {
		t.Errorf("Reset should restart the sequence, got %q", resp.Text)
	}
}

func TestMockAdapterError(t *testing.T) {
	wantErr := errors.New("injected")
	mock := &MockAdapter{Err: wantErr}

	_, err := mock.Complete(context.Background(), Request{Model: "m"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if mock.CallCount() != 1 {
		t.Error("failed calls must still be recorded")
	}
}

func TestMockAdapterName(t *testing.T) {
	if got := (&MockAdapter{}).Name(); got != "mock" {
		t.Errorf("default Name = %q", got)
	}
	if got := (&MockAdapter{Provider: "fake-openai"}).Name(); got != "fake-openai" {
		t.Errorf("Name = %q", got)
	}
}
