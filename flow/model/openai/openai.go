// Package openai implements model.Adapter for OpenAI chat models.
//
// OpenAI's tool convention is a client-side loop: tools are declared in
// function-calling schema on a first completion, requested calls are
// executed by the adapter against their tool servers, the outcomes are
// appended as tool-role messages, and a second completion reasons over
// the full transcript. Usage from both round-trips is summed.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/tool"
)

const defaultModel = "gpt-4o"

// Adapter implements model.Adapter for OpenAI.
type Adapter struct {
	client  *openai.Client
	invoker model.ToolInvoker
}

// New creates an OpenAI adapter. The invoker executes model-requested
// tool calls; pass nil when tools are never used.
func New(apiKey string, invoker model.ToolInvoker) *Adapter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Adapter{client: &client, invoker: invoker}
}

// NewWithBaseURL creates an adapter against a non-default endpoint,
// mainly for tests.
func NewWithBaseURL(apiKey, baseURL string, invoker model.ToolInvoker) *Adapter {
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &Adapter{client: &client, invoker: invoker}
}

// Name implements model.Adapter.
func (a *Adapter) Name() string { return "openai" }

// Complete implements model.Adapter.
func (a *Adapter) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	if ctx.Err() != nil {
		return model.Response{}, ctx.Err()
	}
	if len(req.Servers) > 0 && a.invoker != nil {
		return a.completeWithTools(ctx, req)
	}
	return a.completePlain(ctx, req)
}

func (a *Adapter) completePlain(ctx context.Context, req model.Request) (model.Response, error) {
	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelOrDefault(req.Model)),
		Messages: toMessageParams(req.Messages),
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openai API returned no choices")
	}

	return model.Response{
		Text:  completion.Choices[0].Message.Content,
		Usage: usageFrom(completion),
	}, nil
}

func (a *Adapter) completeWithTools(ctx context.Context, req model.Request) (model.Response, error) {
	messages := toMessageParams(req.Messages)
	tools, serverByTool := declareTools(req.Servers)

	first, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelOrDefault(req.Model)),
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("openai API error: %w", err)
	}
	if len(first.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openai API returned no choices")
	}

	choice := first.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return model.Response{
			Text:  choice.Message.Content,
			Usage: usageFrom(first),
		}, nil
	}

	records := a.executeToolCalls(ctx, choice.Message.ToolCalls, serverByTool)

	// Full transcript: original turns, the assistant's tool request, and
	// one tool-role message per outcome (success or serialized error).
	messages = append(messages, choice.Message.ToParam())
	for i, call := range choice.Message.ToolCalls {
		messages = append(messages, openai.ToolMessage(toolResultContent(records[i]), call.ID))
	}

	second, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelOrDefault(req.Model)),
		Messages: messages,
	})
	if err != nil {
		return model.Response{}, fmt.Errorf("openai API error on tool follow-up: %w", err)
	}
	if len(second.Choices) == 0 {
		return model.Response{}, fmt.Errorf("openai API returned no choices on tool follow-up")
	}

	return model.Response{
		Text:      second.Choices[0].Message.Content,
		ToolCalls: records,
		Usage:     usageFrom(first).Add(usageFrom(second)),
	}, nil
}

// executeToolCalls runs every requested call against its server. Calls
// are independent, so they are issued concurrently and joined; each
// failure is captured in its own record and never aborts the batch.
func (a *Adapter) executeToolCalls(ctx context.Context, calls []openai.ChatCompletionMessageToolCall, serverByTool map[string]*tool.ServerConfig) []tool.CallRecord {
	records := make([]tool.CallRecord, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call openai.ChatCompletionMessageToolCall) {
			defer wg.Done()

			name := call.Function.Name
			server, ok := serverByTool[name]
			if !ok {
				records[i] = tool.CallRecord{
					ID:   call.ID,
					Tool: name,
					Err:  fmt.Sprintf("no tool server declares tool %q", name),
				}
				return
			}

			var args map[string]interface{}
			if call.Function.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
					records[i] = tool.CallRecord{
						ID:     call.ID,
						Tool:   name,
						Server: server.Name,
						Err:    fmt.Sprintf("malformed tool arguments: %v", err),
					}
					return
				}
			}

			rec, _ := a.invoker.CallTool(ctx, server, name, args)
			rec.ID = call.ID
			records[i] = rec
		}(i, call)
	}
	wg.Wait()

	return records
}

// toolResultContent serializes a call outcome for the tool-role message.
func toolResultContent(rec tool.CallRecord) string {
	if rec.Err != "" {
		return fmt.Sprintf(`{"error": %q}`, rec.Err)
	}
	data, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Sprintf("%v", rec.Output)
	}
	return string(data)
}

// declareTools builds the function-tool declarations and the reverse
// index from tool name to owning server.
func declareTools(servers []*tool.ServerConfig) ([]openai.ChatCompletionToolParam, map[string]*tool.ServerConfig) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(servers))
	byName := make(map[string]*tool.ServerConfig, len(servers))

	for _, server := range servers {
		spec := server.Tool
		name := server.Name
		description := ""
		var params map[string]interface{}
		if spec != nil {
			if spec.Name != "" {
				name = spec.Name
			}
			description = spec.Description
			params = spec.Parameters
		}
		if params == nil {
			params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(description),
				Parameters:  shared.FunctionParameters(params),
			},
		})
		byName[name] = server
	}
	return tools, byName
}

func toMessageParams(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func usageFrom(completion *openai.ChatCompletion) model.Usage {
	return model.NormalizeUsage(model.Usage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	})
}

func modelOrDefault(m string) string {
	if m == "" {
		return defaultModel
	}
	return m
}
