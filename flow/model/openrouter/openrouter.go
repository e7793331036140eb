// Package openrouter implements model.Adapter for OpenRouter, an
// OpenAI-compatible multi-model endpoint. A small aliasing table remaps
// friendly model names to OpenRouter's catalog identifiers before a
// plain completion call. Tool calling is not offered through this
// adapter.
package openrouter

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowline-ai/flowline/flow/model"
)

const (
	baseURL      = "https://openrouter.ai/api/v1"
	defaultModel = "openai/gpt-4o-mini"
)

// modelAliases remaps friendly names to OpenRouter catalog identifiers.
var modelAliases = map[string]string{
	"gpt-4o":      "openai/gpt-4o",
	"gpt-4o-mini": "openai/gpt-4o-mini",
	"claude":      "anthropic/claude-3.5-sonnet",
	"gemini":      "google/gemini-flash-1.5",
	"llama":       "meta-llama/llama-3.1-70b-instruct",
	"deepseek":    "deepseek/deepseek-chat",
	"mistral":     "mistralai/mistral-large",
}

// Adapter implements model.Adapter for OpenRouter.
type Adapter struct {
	client *openai.Client
}

// New creates an OpenRouter adapter with the given API key.
func New(apiKey string) *Adapter {
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &Adapter{client: &client}
}

// Name implements model.Adapter.
func (a *Adapter) Name() string { return "openrouter" }

// ResolveAlias maps a friendly model name to its catalog identifier.
// Names without an alias pass through unchanged.
func ResolveAlias(name string) string {
	if name == "" {
		return defaultModel
	}
	if full, ok := modelAliases[name]; ok {
		return full
	}
	return name
}

// Complete implements model.Adapter. Tool servers in the request are
// ignored.
func (a *Adapter) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if ctx.Err() != nil {
		return model.Response{}, ctx.Err()
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(ResolveAlias(req.Model)),
		Messages: messages,
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("openrouter API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openrouter API returned no choices")
	}

	return model.Response{
		Text: completion.Choices[0].Message.Content,
		Usage: model.NormalizeUsage(model.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		}),
	}, nil
}
