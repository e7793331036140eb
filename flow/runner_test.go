package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowline-ai/flowline/flow/emit"
	"github.com/flowline-ai/flowline/flow/model"
	"github.com/flowline-ai/flowline/flow/store"
	"github.com/flowline-ai/flowline/flow/tool"
)

func newTestRunner(mock *model.MockAdapter, opts ...RunnerOption) *Runner {
	agent := NewAgentExecutor(tool.NewStaticResolver(), Policy{DisableFallback: true}, nil)
	agent.SetAdapterFactory(mockFactory(mock))
	return NewRunner(
		agent,
		NewHTTPExecutor(nil),
		NewMCPExecutor(tool.NewStaticResolver(), Policy{DisableFallback: true}),
		testCreds,
		opts...,
	)
}

func TestRunnerSequentialSteps(t *testing.T) {
	mock := &model.MockAdapter{Responses: []model.Response{
		{Text: "draft", Usage: model.Usage{PromptTokens: 100, CompletionTokens: 50}},
		{Text: "polished", Usage: model.Usage{PromptTokens: 80, CompletionTokens: 40}},
	}}
	runner := newTestRunner(mock)

	nodes := []*WorkflowNode{
		{ID: "n1", Name: "Draft", Kind: KindAgent, Data: map[string]interface{}{
			"prompt": "Draft: {{input}}", "model": "openai/gpt-4o-mini",
		}},
		{ID: "n2", Name: "Polish", Kind: KindAgent, Data: map[string]interface{}{
			"prompt": "Polish: {{lastOutput}}", "model": "openai/gpt-4o-mini",
		}},
	}

	res, err := runner.Run(context.Background(), "run-1", nodes, "topic")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "run-1" {
		t.Errorf("RunID = %q", res.RunID)
	}
	if got := res.State.Variables[VarLastOutput]; got != "polished" {
		t.Errorf("lastOutput = %#v, want output of the final step", got)
	}
	// The second step must see the first step's output.
	second := mock.Calls[1]
	if got := second.Messages[len(second.Messages)-1].Content; got != "Polish: draft" {
		t.Errorf("second prompt = %q", got)
	}
	if res.Usage.TotalTokens != 270 {
		t.Errorf("TotalTokens = %d, want 270", res.Usage.TotalTokens)
	}
	if res.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want positive for a priced model", res.CostUSD)
	}
}

func TestRunnerGeneratesRunID(t *testing.T) {
	mock := &model.MockAdapter{Responses: []model.Response{{Text: "ok"}}}
	runner := newTestRunner(mock)

	nodes := []*WorkflowNode{{ID: "n1", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}}}
	res, err := runner.Run(context.Background(), "", nodes, "x")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" {
		t.Error("empty run id should be replaced with a generated one")
	}
}

func TestRunnerStopsOnFailure(t *testing.T) {
	mock := &model.MockAdapter{Err: errors.New("boom")}
	runner := newTestRunner(mock)

	nodes := []*WorkflowNode{
		{ID: "bad", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}},
		{ID: "never", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}},
	}
	_, err := runner.Run(context.Background(), "run-f", nodes, "x")
	if err == nil {
		t.Fatal("expected run failure")
	}
	if !strings.Contains(err.Error(), "step 1 (bad)") {
		t.Errorf("error should name the failing step: %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("run must stop at the first failure; calls = %d", mock.CallCount())
	}
}

func TestRunnerUnsupportedKind(t *testing.T) {
	runner := newTestRunner(&model.MockAdapter{})
	nodes := []*WorkflowNode{{ID: "n1", Kind: NodeKind("teleport")}}
	_, err := runner.Run(context.Background(), "run-u", nodes, "x")

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
}

func TestRunnerPersistsHistory(t *testing.T) {
	mem := store.NewMemStore()
	mock := &model.MockAdapter{Responses: []model.Response{
		{Text: "one", Usage: model.Usage{PromptTokens: 10, CompletionTokens: 5}},
		{Text: "two"},
	}}
	runner := newTestRunner(mock, WithStore(mem))

	nodes := []*WorkflowNode{
		{ID: "n1", Kind: KindAgent, Data: map[string]interface{}{"prompt": "a", "model": "openai/gpt-4o-mini"}},
		{ID: "n2", Kind: KindAgent, Data: map[string]interface{}{"prompt": "b"}},
	}
	ctx := context.Background()
	if _, err := runner.Run(ctx, "run-p", nodes, "x"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	steps, err := mem.History(ctx, "run-p")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("len(steps) = %d", len(steps))
	}
	if steps[0].NodeID != "n1" || steps[0].Step != 1 || steps[0].Status != "success" {
		t.Errorf("step 1 record = %+v", steps[0])
	}
	if string(steps[1].Output) != `"two"` {
		t.Errorf("step 2 output = %s", steps[1].Output)
	}

	run, err := mem.LoadRun(ctx, "run-p")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if run.Status != store.StatusSucceeded {
		t.Errorf("run status = %q", run.Status)
	}
	if run.InputTokens != 10 || run.OutputTokens != 5 {
		t.Errorf("run tokens = %d/%d", run.InputTokens, run.OutputTokens)
	}

	_, step, err := mem.LoadSnapshot(ctx, "run-p")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if step != 2 {
		t.Errorf("snapshot step = %d, want 2", step)
	}
}

func TestRunnerEmitsLifecycleEvents(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	mock := &model.MockAdapter{Responses: []model.Response{{Text: "ok"}}}
	runner := newTestRunner(mock, WithEmitter(buf))

	nodes := []*WorkflowNode{{ID: "n1", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}}}
	if _, err := runner.Run(context.Background(), "run-e", nodes, "x"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var msgs []string
	for _, ev := range buf.History("run-e") {
		msgs = append(msgs, ev.Msg)
	}
	want := []string{"run_start", "step_start", "step_end", "run_end"}
	if len(msgs) != len(want) {
		t.Fatalf("events = %v, want %v", msgs, want)
	}
	for i, msg := range want {
		if msgs[i] != msg {
			t.Errorf("event %d = %q, want %q", i, msgs[i], msg)
		}
	}
}

func TestRunnerCancelledContext(t *testing.T) {
	runner := newTestRunner(&model.MockAdapter{Responses: []model.Response{{Text: "ok"}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	nodes := []*WorkflowNode{{ID: "n1", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}}}
	if _, err := runner.Run(ctx, "run-c", nodes, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunnerFallbackEvent(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	agent := NewAgentExecutor(tool.NewStaticResolver(), Policy{DemoMode: true}, nil)
	runner := NewRunner(agent, NewHTTPExecutor(nil), NewMCPExecutor(tool.NewStaticResolver(), Policy{DemoMode: true}), testCreds, WithEmitter(buf))

	nodes := []*WorkflowNode{{ID: "n1", Name: "Demo", Kind: KindAgent, Data: map[string]interface{}{"prompt": "p"}}}
	if _, err := runner.Run(context.Background(), "run-d", nodes, "x"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := buf.HistoryWithFilter("run-d", emit.HistoryFilter{Msg: "fallback"})
	if len(events) != 1 {
		t.Errorf("fallback events = %d, want 1", len(events))
	}
}
