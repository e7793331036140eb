package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/flowline-ai/flowline/flow/model"
)

// ModelPricing defines input and output token costs for a model, in USD
// per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Static pricing for the supported providers. Prices are in USD per 1M
// tokens and subject to change; update as providers adjust pricing.
var defaultModelPricing = map[string]ModelPricing{
	// OpenAI
	"gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},

	// Anthropic
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-sonnet":          {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku":           {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-opus":              {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-haiku":             {InputPer1M: 0.25, OutputPer1M: 1.25},

	// Google
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},

	// xAI
	"grok-2":      {InputPer1M: 2.00, OutputPer1M: 10.00},
	"grok-2-mini": {InputPer1M: 0.30, OutputPer1M: 0.50},
}

// ModelCall records one provider invocation with its token usage and
// calculated cost.
type ModelCall struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
	NodeID       string
}

// CostTracker accumulates token usage and USD cost across the provider
// calls of one workflow run, with per-model attribution.
//
// Unknown models are still recorded, at zero cost. All methods are safe
// for concurrent use.
type CostTracker struct {
	RunID    string
	Currency string
	Pricing  map[string]ModelPricing

	mu           sync.RWMutex
	calls        []ModelCall
	totalCost    float64
	modelCosts   map[string]float64
	inputTokens  int64
	outputTokens int64
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker(runID string) *CostTracker {
	return &CostTracker{
		RunID:      runID,
		Currency:   "USD",
		Pricing:    defaultModelPricing,
		modelCosts: make(map[string]float64),
	}
}

// Record accounts one completion's normalized usage against a model.
func (ct *CostTracker) Record(modelName string, usage model.Usage, nodeID string) {
	usage = model.NormalizeUsage(usage)

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pricing := ct.Pricing[modelName]
	cost := (float64(usage.InputTokens)/1_000_000.0)*pricing.InputPer1M +
		(float64(usage.OutputTokens)/1_000_000.0)*pricing.OutputPer1M

	ct.calls = append(ct.calls, ModelCall{
		Model:        modelName,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
		NodeID:       nodeID,
	})
	ct.totalCost += cost
	ct.modelCosts[modelName] += cost
	ct.inputTokens += int64(usage.InputTokens)
	ct.outputTokens += int64(usage.OutputTokens)
}

// TotalCost returns the cumulative cost across all recorded calls.
func (ct *CostTracker) TotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) CostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// Calls returns all recorded calls in chronological order.
func (ct *CostTracker) Calls() []ModelCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	calls := make([]ModelCall, len(ct.calls))
	copy(calls, ct.calls)
	return calls
}

// TokenUsage returns the total input and output token counts.
func (ct *CostTracker) TokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetCustomPricing overrides pricing for one model. Useful for custom
// deployments or price updates.
func (ct *CostTracker) SetCustomPricing(modelName string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	// Copy-on-write so the shared default table is never mutated.
	copied := make(map[string]ModelPricing, len(ct.Pricing)+1)
	for k, v := range ct.Pricing {
		copied[k] = v
	}
	copied[modelName] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
	ct.Pricing = copied
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return fmt.Sprintf("CostTracker{RunID: %s, Calls: %d, TotalCost: $%.4f %s, InputTokens: %d, OutputTokens: %d}",
		ct.RunID, len(ct.calls), ct.totalCost, ct.Currency, ct.inputTokens, ct.outputTokens)
}
