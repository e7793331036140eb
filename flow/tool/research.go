package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Web-research actions supported by ResearchClient.
const (
	ActionScrape = "scrape"
	ActionSearch = "search"
	ActionMap    = "map"
	ActionCrawl  = "crawl"
)

// ResearchClient drives a web-research tool server exposing scrape,
// search, map, and crawl operations over a Firecrawl-style v1 HTTP API.
//
// Scrape fetches one page and returns markdown/html/metadata; search runs
// a web query returning ranked results; map lists the URLs of a site;
// crawl walks a site collecting page content.
type ResearchClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewResearchClient creates a client for the given backend endpoint.
// A nil httpClient uses http.DefaultClient.
func NewResearchClient(baseURL, apiKey string, httpClient *http.Client) *ResearchClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ResearchClient{baseURL: baseURL, apiKey: apiKey, client: httpClient}
}

// Scrape fetches a single page and returns the extracted content.
func (r *ResearchClient) Scrape(ctx context.Context, url string) (map[string]interface{}, error) {
	return r.post(ctx, "/v1/scrape", map[string]interface{}{
		"url":     url,
		"formats": []string{"markdown", "html"},
	})
}

// Search runs a web search query.
func (r *ResearchClient) Search(ctx context.Context, query string) (map[string]interface{}, error) {
	return r.post(ctx, "/v1/search", map[string]interface{}{
		"query": query,
		"limit": 5,
	})
}

// Map lists the URLs reachable from a site root.
func (r *ResearchClient) Map(ctx context.Context, url string) (map[string]interface{}, error) {
	return r.post(ctx, "/v1/map", map[string]interface{}{
		"url": url,
	})
}

// Crawl walks a site and collects page content.
func (r *ResearchClient) Crawl(ctx context.Context, url string) (map[string]interface{}, error) {
	return r.post(ctx, "/v1/crawl", map[string]interface{}{
		"url":   url,
		"limit": 10,
	})
}

// Do dispatches an action by name. Unknown actions default to search so
// heuristic callers always get a usable result shape.
func (r *ResearchClient) Do(ctx context.Context, action, target string) (map[string]interface{}, error) {
	switch action {
	case ActionScrape:
		return r.Scrape(ctx, target)
	case ActionMap:
		return r.Map(ctx, target)
	case ActionCrawl:
		return r.Crawl(ctx, target)
	default:
		return r.Search(ctx, target)
	}
}

func (r *ResearchClient) post(ctx context.Context, path string, payload map[string]interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode research request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create research request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("research request to %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read research response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("research backend returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("research backend returned malformed JSON: %w", err)
	}

	// The v1 API wraps payloads in {"success": true, "data": {...}}.
	if data, ok := result["data"].(map[string]interface{}); ok {
		return data, nil
	}
	return result, nil
}
