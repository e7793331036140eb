package flow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Policy holds the process-wide degraded-mode switches. DemoMode forces
// synthetic data regardless of failure; DisableFallback wins over
// everything. The net policy is "fallback enabled unless explicitly
// disabled".
type Policy struct {
	DemoMode        bool
	DisableFallback bool
}

// FallbackEnabled reports whether a failed live dependency may be
// replaced with synthetic data.
func (p Policy) FallbackEnabled() bool {
	return !p.DisableFallback
}

// ForceFallback reports whether synthetic data should be used without
// even attempting the live dependency.
func (p Policy) ForceFallback() bool {
	return p.DemoMode && !p.DisableFallback
}

// MockResponses is the deterministic override consulted before any live
// provider call, keyed by node id, then node name, then "default". It
// exists to make pipelines testable without live API calls.
type MockResponses map[string]string

// ParseMockResponses accepts either a JSON object value or a plain
// string (which becomes the default response). Empty input yields nil.
func ParseMockResponses(raw string) MockResponses {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err == nil {
		return MockResponses(m)
	}
	return MockResponses{"default": raw}
}

// Lookup finds the override for a node: id first, then declared name,
// then the default key.
func (m MockResponses) Lookup(nodeID, nodeName string) (string, bool) {
	if m == nil {
		return "", false
	}
	if v, ok := m[nodeID]; ok {
		return v, true
	}
	if nodeName != "" {
		if v, ok := m[nodeName]; ok {
			return v, true
		}
	}
	v, ok := m["default"]
	return v, ok
}

// Topic classifies the subject matter sniffed from a query or run input.
type Topic string

const (
	TopicFinance  Topic = "finance"
	TopicProduct  Topic = "product"
	TopicResearch Topic = "research"
)

var tickerPattern = regexp.MustCompile(`\b[A-Z]{2,5}\b`)

// DetectTopic keyword-sniffs free text into a coarse topic. Substring
// matching is best-effort dispatch, not a classifier; callers must treat
// misclassification as acceptable.
func DetectTopic(text string) Topic {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "stock", "price", "market", "ticker", "invest", "earnings", "finance"):
		return TopicFinance
	case containsAny(lower, "product", "review", "buy", "purchase", "compare", "feature"):
		return TopicProduct
	default:
		return TopicResearch
	}
}

// DetectTicker pulls the first ticker-shaped token out of text, or "".
func DetectTicker(text string) string {
	return tickerPattern.FindString(text)
}

// FallbackSearchResults synthesizes deterministic search results shaped
// by the query's topic, for degraded-mode MCP steps.
func FallbackSearchResults(query string) map[string]interface{} {
	var results []interface{}
	switch DetectTopic(query) {
	case TopicFinance:
		ticker := DetectTicker(query)
		if ticker == "" {
			ticker = "ACME"
		}
		results = []interface{}{
			map[string]interface{}{
				"title":   fmt.Sprintf("%s Stock Analysis and Market Outlook", ticker),
				"url":     fmt.Sprintf("https://finance.example.com/quote/%s", strings.ToLower(ticker)),
				"content": fmt.Sprintf("%s shares traded mixed this quarter. Analysts point to stable revenue growth and a cautious guidance range.", ticker),
			},
			map[string]interface{}{
				"title":   fmt.Sprintf("Quarterly earnings summary for %s", ticker),
				"url":     fmt.Sprintf("https://news.example.com/markets/%s-earnings", strings.ToLower(ticker)),
				"content": "Revenue came in slightly above consensus while operating margins held steady year over year.",
			},
		}
	case TopicProduct:
		results = []interface{}{
			map[string]interface{}{
				"title":   "Product overview and specifications",
				"url":     "https://reviews.example.com/product-overview",
				"content": "A balanced option in its category with competitive pricing, solid build quality, and broadly positive user feedback.",
			},
			map[string]interface{}{
				"title":   "Hands-on review roundup",
				"url":     "https://reviews.example.com/roundup",
				"content": "Reviewers highlight ease of use and reliability; the most common criticism concerns limited customization.",
			},
		}
	default:
		results = []interface{}{
			map[string]interface{}{
				"title":   "Research summary: " + query,
				"url":     "https://research.example.com/summary",
				"content": "An overview of the current state of the topic, covering key developments, open questions, and recent publications.",
			},
			map[string]interface{}{
				"title":   "Background reading",
				"url":     "https://research.example.com/background",
				"content": "Introductory material and context for readers new to the subject.",
			},
		}
	}

	return map[string]interface{}{
		"results": results,
		"query":   query,
	}
}

// Agent fallback scenarios, keyed by node role. Registered rather than
// inlined so new demo scenarios can be added without touching the
// executor's control flow.
type scenarioFunc func(topic Topic, hint string) string

var agentScenarios = map[string]scenarioFunc{
	"analysis": func(topic Topic, hint string) string {
		if topic == TopicFinance && hint != "" {
			return fmt.Sprintf("Analysis of %s: fundamentals appear stable with moderate growth. Revenue trends are positive, and the risk profile is in line with sector peers. Key factors to monitor include guidance revisions and margin pressure.", hint)
		}
		return "Analysis: the available information suggests a stable overall picture with a few areas worth closer attention. The main drivers are consistent with expectations, and no significant anomalies were detected."
	},
	"summary": func(topic Topic, hint string) string {
		if hint != "" {
			return fmt.Sprintf("Summary: the material concerning %s covers the main developments, their context, and likely near-term implications. The overall tone is neutral-to-positive.", hint)
		}
		return "Summary: the source material has been condensed to its main points. The central findings are consistent across sources, with minor differences in emphasis."
	},
	"report": func(topic Topic, hint string) string {
		return "Report\n\n1. Overview: the collected inputs were reviewed and organized by theme.\n2. Findings: the data supports the main hypotheses with moderate confidence.\n3. Recommendations: continue monitoring and revisit once additional data is available."
	},
	"recommend": func(topic Topic, hint string) string {
		if topic == TopicProduct && hint != "" {
			return fmt.Sprintf("Recommendation: based on the comparison, %s offers the best balance of features and value for most use cases.", hint)
		}
		return "Recommendation: proceed with the leading option, which offers the best balance of benefit and risk among the alternatives considered."
	},
	"extract": func(topic Topic, hint string) string {
		return `{"extracted": true, "fields": {"status": "ok", "note": "structured extraction completed"}}`
	},
}

// RegisterScenario adds or replaces a fallback scenario for a node role.
func RegisterScenario(role string, fn func(topic Topic, hint string) string) {
	agentScenarios[role] = fn
}

// FallbackAgentResponse synthesizes a context-aware canned response for
// a failed agent step: the node's declared name selects the scenario
// role, and structured hints in the run input (a ticker symbol, a
// product name) shape the text.
func FallbackAgentResponse(nodeName, input string) string {
	topic := DetectTopic(input)
	hint := ""
	if topic == TopicFinance {
		hint = DetectTicker(input)
	} else if topic == TopicProduct {
		hint = firstQuotedOrCapitalized(input)
	}

	lower := strings.ToLower(nodeName)
	for role, fn := range agentScenarios {
		if strings.Contains(lower, role) {
			return fn(topic, hint)
		}
	}
	return "The step completed with a generated placeholder response. Live provider access was unavailable, so this output is synthetic demo data."
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var capitalizedPattern = regexp.MustCompile(`"([^"]+)"|\b([A-Z][a-z]+(?: [A-Z][a-z]+)*)\b`)

// firstQuotedOrCapitalized pulls a product-name-looking phrase out of
// free text: a quoted phrase first, else the first capitalized run.
func firstQuotedOrCapitalized(text string) string {
	m := capitalizedPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}
