package flow

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/flowline-ai/flowline/flow/tool"
)

// HTTPResponse is the result of an HTTP step.
type HTTPResponse struct {
	Status     int                    `json:"status"`
	StatusText string                 `json:"statusText"`
	Headers    map[string]interface{} `json:"headers"`
	Data       interface{}            `json:"data"`
	URL        string                 `json:"url"`
	Method     string                 `json:"method"`
}

// HTTPExecutor executes one step as a raw outbound HTTP call with
// templated URL, headers, and body.
//
// Node data keys: "method", "url", "headers" (map), "body" (string),
// "auth" (map with "type" one of bearer/apiKey/basic, "token", and for
// apiKey an optional "header" name). URL, header values, and body all
// pass through variable substitution before use; auth tokens that look
// like ${NAME} are resolved against the process environment after
// substitution so secrets never appear in workflow definitions.
type HTTPExecutor struct {
	client *http.Client
}

// NewHTTPExecutor creates an HTTP executor. A nil client uses
// http.DefaultClient; run-level timeouts are the caller's concern via
// ctx.
func NewHTTPExecutor(client *http.Client) *HTTPExecutor {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPExecutor{client: client}
}

// Execute performs the step's HTTP call. Non-2xx responses fail with an
// *HTTPError carrying status and body.
func (e *HTTPExecutor) Execute(ctx context.Context, node *WorkflowNode, state *WorkflowState) (*HTTPResponse, error) {
	url := Substitute(node.DataString("url"), state)
	if url == "" {
		return nil, &ConfigError{Message: "http step requires a url"}
	}

	method := strings.ToUpper(node.DataString("method"))
	if method == "" {
		method = http.MethodGet
	}

	body := e.prepareBody(node.DataString("body"), state)

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &ConfigError{Message: "failed to create HTTP request", Cause: err}
	}

	for key, value := range node.DataMap("headers") {
		if s, ok := value.(string); ok {
			req.Header.Set(key, Substitute(s, state))
		}
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	e.applyAuth(req, node, state)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Message: "failed to read HTTP response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Body:       string(respBody),
		}
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for key, values := range resp.Header {
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = values
		}
	}

	return &HTTPResponse{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Data:       parseBody(respBody),
		URL:        url,
		Method:     method,
	}, nil
}

// prepareBody substitutes the raw body text, and when it parses as JSON
// additionally substitutes every string leaf and object key inside the
// parsed structure before re-serializing. String-level substitution
// alone misses variables hidden behind JSON escaping in nested payloads.
func (e *HTTPExecutor) prepareBody(raw string, state *WorkflowState) string {
	if raw == "" {
		return ""
	}
	substituted := Substitute(raw, state)

	var parsed interface{}
	if err := json.Unmarshal([]byte(substituted), &parsed); err != nil {
		return substituted
	}
	resolved := SubstituteAny(parsed, state)
	out, err := json.Marshal(resolved)
	if err != nil {
		log.Warn().Err(err).Msg("failed to re-serialize substituted JSON body; sending raw text")
		return substituted
	}
	return string(out)
}

// applyAuth attaches the step's declared authentication. Tokens support
// deferred ${NAME} environment references.
func (e *HTTPExecutor) applyAuth(req *http.Request, node *WorkflowNode, state *WorkflowState) {
	auth := node.DataMap("auth")
	if auth == nil {
		return
	}
	authType, _ := auth["type"].(string)
	token, _ := auth["token"].(string)
	token = tool.ExpandEnvRefs(Substitute(token, state), nil)
	if token == "" {
		return
	}

	switch authType {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+token)
	case "apiKey":
		header, _ := auth["header"].(string)
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, token)
	case "basic":
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(token)))
	}
}

// parseBody decodes a response as JSON, falling back to raw text.
func parseBody(body []byte) interface{} {
	var data interface{}
	if err := json.Unmarshal(body, &data); err == nil {
		return data
	}
	return string(body)
}
