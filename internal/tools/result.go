package tools

import (
	"encoding/json"
	"strings"
)

// Result is the normalized outcome of one successful tool call. Payloads
// arrive either as structured JSON or as loosely-typed text; the coercion
// happens once at the RPC boundary so the engine never duck-types content.
type Result struct {
	// Structured holds the decoded payload when the tool returned a JSON
	// object, or nil when only raw text was available.
	Structured map[string]any
	// Raw holds the original text payload when it could not be decoded as a
	// JSON object.
	Raw string
}

// Fields returns the payload as a map on every shape. Raw text degrades to
// {"text": raw} rather than failing, so a malformed-but-present payload never
// masks a completed call. An empty response yields an empty map: the call
// completed, it simply returned nothing.
func (r Result) Fields() map[string]any {
	if r.Structured != nil {
		return r.Structured
	}
	if r.Raw != "" {
		return map[string]any{"text": r.Raw}
	}
	return map[string]any{}
}

// String returns the raw text if present, otherwise the structured payload
// re-encoded as JSON.
func (r Result) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	if r.Structured != nil {
		data, err := json.Marshal(r.Structured)
		if err == nil {
			return string(data)
		}
	}
	return ""
}

// coerce builds a Result from a text payload, preferring a structured
// decoding when the text is a JSON object.
func coerce(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
		return Result{Structured: fields}
	}

	return Result{Raw: text}
}
