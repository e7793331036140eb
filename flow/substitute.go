package flow

import (
	"regexp"
	"strings"
)

// Placeholder tokens look like {{name}}. Names may carry surrounding
// whitespace inside the braces.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// Substitute replaces every {{name}} placeholder in s with the value of
// the corresponding state variable. Unknown names are left intact so a
// missing variable is visible in the output rather than silently erased.
// Substitution is idempotent: text with no remaining placeholders passes
// through unchanged.
func Substitute(s string, state *WorkflowState) string {
	if state == nil || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(token string) string {
		name := placeholderPattern.FindStringSubmatch(token)[1]
		if _, ok := state.Variables[name]; !ok {
			return token
		}
		return state.VarString(name)
	})
}

// SubstituteAny applies Substitute recursively through a structured
// value: string leaves and map keys are substituted; maps and slices are
// rebuilt so the input is never mutated. Non-string scalars pass through
// unchanged.
func SubstituteAny(v interface{}, state *WorkflowState) interface{} {
	switch val := v.(type) {
	case string:
		return Substitute(val, state)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[Substitute(k, state)] = SubstituteAny(item, state)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = SubstituteAny(item, state)
		}
		return out
	default:
		return v
	}
}
