package flow

import (
	"errors"
	"fmt"
)

// ErrNoServerConfigured indicates an MCP step had no resolvable tool
// servers. Returned inside an error result rather than propagated, so
// the caller decides whether to halt the run.
var ErrNoServerConfigured = errors.New("no tool server configured for this step")

// ErrMissingCredentials indicates an agent step ran without any provider
// API keys. The executor's caller is responsible for key provisioning.
var ErrMissingCredentials = errors.New("no provider API keys supplied")

// ConfigError is a configuration failure (no resolvable tool servers,
// missing provider key, missing required field). Always surfaced, never
// silently retried.
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// UpstreamError is a failure of an external dependency: provider API
// failure, malformed provider response, or a tool backend error.
// Surfaced to the caller unless degraded-mode fallback is active.
type UpstreamError struct {
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error { return e.Cause }

// HTTPError is an UpstreamError variant for non-2xx responses from an
// HTTP step, carrying the status and (possibly truncated) body.
type HTTPError struct {
	Status     int
	StatusText string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP request failed with status %d %s: %s", e.Status, e.StatusText, e.Body)
}

// AgentErrorKind classifies agent step failures into user-facing
// categories with tailored guidance.
type AgentErrorKind string

const (
	// ErrKindAPIKey covers invalid or rejected provider credentials.
	ErrKindAPIKey AgentErrorKind = "api_key"

	// ErrKindRateLimit covers provider throttling (429s).
	ErrKindRateLimit AgentErrorKind = "rate_limit"

	// ErrKindNoProvider covers runs where no key exists for the requested
	// provider.
	ErrKindNoProvider AgentErrorKind = "no_provider"

	// ErrKindGeneric covers everything unrecognized.
	ErrKindGeneric AgentErrorKind = "generic"
)

// AgentError wraps an agent step failure with its classification and
// actionable guidance text for the end user.
type AgentError struct {
	Kind     AgentErrorKind
	Provider string
	Guidance string
	Cause    error
}

func (e *AgentError) Error() string {
	msg := e.Guidance
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("agent step failed (%s provider): %s", e.Provider, msg)
	}
	return "agent step failed: " + msg
}

func (e *AgentError) Unwrap() error { return e.Cause }

// NoAPIKeyError reports that the requested provider has no key
// available. The message names the provider so the user knows which
// credential to provision.
type NoAPIKeyError struct {
	Provider string
}

func (e *NoAPIKeyError) Error() string {
	return fmt.Sprintf("no API key available for provider %q", e.Provider)
}
