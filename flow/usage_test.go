package flow

import (
	"math"
	"testing"

	"github.com/flowline-ai/flowline/flow/model"
)

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCostTrackerRecord(t *testing.T) {
	ct := NewCostTracker("run-1")
	ct.Record("gpt-4o", model.Usage{PromptTokens: 1000, CompletionTokens: 500}, "n1")

	// 1000 in at $2.50/1M + 500 out at $10.00/1M.
	want := 0.0025 + 0.005
	if got := ct.TotalCost(); !closeTo(got, want) {
		t.Errorf("TotalCost = %v, want %v", got, want)
	}

	in, out := ct.TokenUsage()
	if in != 1000 || out != 500 {
		t.Errorf("TokenUsage = %d/%d", in, out)
	}

	calls := ct.Calls()
	if len(calls) != 1 || calls[0].NodeID != "n1" || calls[0].Model != "gpt-4o" {
		t.Errorf("Calls = %+v", calls)
	}
}

func TestCostTrackerUnknownModel(t *testing.T) {
	ct := NewCostTracker("run-2")
	ct.Record("mystery-model-9000", model.Usage{PromptTokens: 10000, CompletionTokens: 10000}, "n1")

	if got := ct.TotalCost(); got != 0 {
		t.Errorf("unknown model should cost zero, got %v", got)
	}
	// Tokens still count even when the price is unknown.
	in, out := ct.TokenUsage()
	if in != 10000 || out != 10000 {
		t.Errorf("TokenUsage = %d/%d", in, out)
	}
	if len(ct.Calls()) != 1 {
		t.Error("unknown-model calls must still be recorded")
	}
}

func TestCostTrackerAggregation(t *testing.T) {
	ct := NewCostTracker("run-3")
	ct.Record("gpt-4o-mini", model.Usage{PromptTokens: 1_000_000}, "n1")
	ct.Record("gpt-4o-mini", model.Usage{CompletionTokens: 1_000_000}, "n2")
	ct.Record("claude-3-5-sonnet", model.Usage{PromptTokens: 1_000_000}, "n3")

	byModel := ct.CostByModel()
	if !closeTo(byModel["gpt-4o-mini"], 0.75) {
		t.Errorf("gpt-4o-mini cost = %v", byModel["gpt-4o-mini"])
	}
	if !closeTo(byModel["claude-3-5-sonnet"], 3.00) {
		t.Errorf("claude cost = %v", byModel["claude-3-5-sonnet"])
	}
	if !closeTo(ct.TotalCost(), 3.75) {
		t.Errorf("TotalCost = %v", ct.TotalCost())
	}
}

func TestCostTrackerNormalizesUsage(t *testing.T) {
	ct := NewCostTracker("run-4")
	// Provider reported the alias fields only.
	ct.Record("gpt-4o", model.Usage{InputTokens: 1000, OutputTokens: 500}, "n1")

	in, out := ct.TokenUsage()
	if in != 1000 || out != 500 {
		t.Errorf("alias fields not normalized: %d/%d", in, out)
	}
}

func TestCostTrackerCustomPricing(t *testing.T) {
	ct := NewCostTracker("run-5")
	ct.SetCustomPricing("local-llama", 1.00, 2.00)
	ct.Record("local-llama", model.Usage{PromptTokens: 1_000_000, CompletionTokens: 1_000_000}, "n1")

	if !closeTo(ct.TotalCost(), 3.00) {
		t.Errorf("TotalCost = %v", ct.TotalCost())
	}
	// The shared default table must not pick up the override.
	if _, ok := defaultModelPricing["local-llama"]; ok {
		t.Error("SetCustomPricing leaked into the default table")
	}
}

func TestUsageAdd(t *testing.T) {
	a := model.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	b := model.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	sum := a.Add(b)
	if sum.PromptTokens != 11 || sum.CompletionTokens != 7 || sum.TotalTokens != 18 {
		t.Errorf("Add = %+v", sum)
	}
}
