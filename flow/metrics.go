package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus metrics for workflow step execution.
//
// All metrics are namespaced "flowline_":
//
//   - step_latency_ms (histogram): step duration by node kind and status.
//   - steps_total (counter): executed steps by kind and status.
//   - provider_calls_total (counter): LLM completions by provider and status.
//   - tool_calls_total (counter): remote tool invocations by server and status.
//   - fallbacks_total (counter): steps that substituted synthetic data.
//   - tokens_total (counter): normalized token usage by provider and direction.
//
// A nil *Metrics is valid and records nothing, so instrumentation call
// sites never need guarding.
type Metrics struct {
	stepLatency   *prometheus.HistogramVec
	steps         *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	tokens        *prometheus.CounterVec
}

// NewMetrics creates and registers the workflow metrics. Pass
// prometheus.DefaultRegisterer for the global registry, or a private
// registry for isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowline",
			Name:      "step_latency_ms",
			Help:      "Step execution duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 60000},
		}, []string{"kind", "status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "steps_total",
			Help:      "Executed workflow steps",
		}, []string{"kind", "status"}),
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "provider_calls_total",
			Help:      "LLM provider completions",
		}, []string{"provider", "status"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "tool_calls_total",
			Help:      "Remote tool server invocations",
		}, []string{"server", "status"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "fallbacks_total",
			Help:      "Steps completed with synthetic fallback data instead of live calls",
		}, []string{"kind"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowline",
			Name:      "tokens_total",
			Help:      "Normalized token usage",
		}, []string{"provider", "direction"}),
	}
}

// ObserveStep records one step execution.
func (m *Metrics) ObserveStep(kind NodeKind, latency time.Duration, err error) {
	if m == nil {
		return
	}
	status := statusLabel(err)
	m.stepLatency.WithLabelValues(string(kind), status).Observe(float64(latency.Milliseconds()))
	m.steps.WithLabelValues(string(kind), status).Inc()
}

// ObserveProviderCall records one LLM completion and its token usage.
func (m *Metrics) ObserveProviderCall(provider string, inputTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, statusLabel(err)).Inc()
	if err == nil {
		m.tokens.WithLabelValues(provider, "input").Add(float64(inputTokens))
		m.tokens.WithLabelValues(provider, "output").Add(float64(outputTokens))
	}
}

// ObserveToolCall records one remote tool invocation.
func (m *Metrics) ObserveToolCall(server string, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(server, statusLabel(err)).Inc()
}

// ObserveFallback records a step that substituted synthetic data.
func (m *Metrics) ObserveFallback(kind NodeKind) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(string(kind)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
