// Package google implements model.Adapter for Google's Gemini API.
//
// Tool calling is not supported through this adapter. Multi-turn
// conversations are flattened into a single textual prompt (user turns
// verbatim, assistant turns prefixed to keep roles unambiguous) before
// invocation, and usage is translated from Gemini's token-count
// metadata naming into the normalized shape.
package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/flowline-ai/flowline/flow/model"
)

const defaultModel = "gemini-1.5-flash"

// Adapter implements model.Adapter for Gemini.
type Adapter struct {
	client *genai.Client
}

// New creates a Gemini adapter with the given API key.
func New(ctx context.Context, apiKey string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return &Adapter{client: client}, nil
}

// Close releases the underlying client's resources.
func (a *Adapter) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Name implements model.Adapter.
func (a *Adapter) Name() string { return "google" }

// Complete implements model.Adapter. Tool servers in the request are
// ignored.
func (a *Adapter) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if ctx.Err() != nil {
		return model.Response{}, ctx.Err()
	}

	modelName := req.Model
	if modelName == "" {
		modelName = defaultModel
	}

	gm := a.client.GenerativeModel(modelName)
	resp, err := gm.GenerateContent(ctx, genai.Text(FlattenMessages(req.Messages)))
	if err != nil {
		return model.Response{}, fmt.Errorf("google API error: %w", err)
	}

	var text strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}

	var usage model.Usage
	if resp.UsageMetadata != nil {
		usage = model.NormalizeUsage(model.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		})
	}

	return model.Response{Text: text.String(), Usage: usage}, nil
}

// FlattenMessages collapses a multi-turn conversation into one prompt.
// User turns appear verbatim; assistant turns are prefixed to
// disambiguate role; system turns lead the prompt.
func FlattenMessages(messages []model.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(msg.Content)
		case model.RoleSystem:
			sb.WriteString(msg.Content)
		default:
			sb.WriteString(msg.Content)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}
