// Package tool provides tool-server resolution and the remote tool-call
// protocol used by agent and MCP steps.
//
// A tool server is an external address exposing named callable operations.
// Steps reference servers by symbolic identifier; a Resolver maps the
// identifier to a full ServerConfig (endpoint, auth token, declared tool
// description). Models invoke operations on resolved servers through the
// JSON-RPC "tools/call" protocol implemented by RPCClient.
package tool

import (
	"fmt"
	"os"
	"regexp"
)

// Capability identifies what a tool server can do. The MCP executor
// dispatches on capability, not on server name.
type Capability string

const (
	// CapabilityWebResearch marks servers exposing scrape/search/map/crawl
	// operations against the live web.
	CapabilityWebResearch Capability = "web-research"

	// CapabilityGeneric marks opaque named servers dispatched by name.
	CapabilityGeneric Capability = "generic"
)

// Spec describes a tool in JSON-schema form so it can be presented to a
// model as a callable function.
type Spec struct {
	// Name uniquely identifies the tool. Must be a valid function name.
	Name string `json:"name"`

	// Description explains what the tool does. The model uses this to
	// decide when to call the tool.
	Description string `json:"description"`

	// Parameters defines the tool's input using JSON Schema format.
	// Optional for tools with no parameters.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ServerConfig is a fully resolved tool-server connection descriptor.
//
// The URL may embed deferred secret placeholders of the form ${NAME}
// which are resolved against the process environment (or supplied key
// material) at call time, so secrets never appear in workflow
// definitions.
type ServerConfig struct {
	// Name is the server's symbolic identifier.
	Name string `json:"name"`

	// URL is the server endpoint. May contain ${NAME} placeholders.
	URL string `json:"url"`

	// AuthToken is an optional static bearer token for the server.
	AuthToken string `json:"authToken,omitempty"`

	// Capability declares how the MCP executor should drive this server.
	Capability Capability `json:"capability,omitempty"`

	// Tool optionally declares the callable operation this server exposes,
	// used to present the server to a model as a first-class tool.
	Tool *Spec `json:"tool,omitempty"`
}

// CallRecord captures one tool invocation issued during a step, for
// observability. Accumulated per step; a failed call is recorded with Err
// set rather than aborting the step.
type CallRecord struct {
	// ID correlates the request to its result.
	ID string `json:"id"`

	// Tool is the name of the invoked operation.
	Tool string `json:"tool"`

	// Server is the symbolic name of the server that handled the call.
	Server string `json:"server,omitempty"`

	// Arguments holds the call's input parameters.
	Arguments map[string]interface{} `json:"arguments,omitempty"`

	// Output holds the normalized call result when the call succeeded.
	Output interface{} `json:"output,omitempty"`

	// Err holds the serialized failure when the call did not succeed.
	Err string `json:"error,omitempty"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvRefs resolves ${NAME} placeholders in s. Lookups go through
// extra first, then the process environment. Unresolvable references are
// left intact so the caller can surface a descriptive error downstream.
func ExpandEnvRefs(s string, extra map[string]string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRefPattern.FindStringSubmatch(ref)[1]
		if v, ok := extra[name]; ok && v != "" {
			return v
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return ref
	})
}

// NotImplementedError reports a generic named server the executor has no
// adapter for. It carries the server name and endpoint for diagnostics.
type NotImplementedError struct {
	Server string
	URL    string
}

// Error implements the error interface.
func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("no adapter implemented for tool server %q (endpoint %s)", e.Server, e.URL)
}
