package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/routeworks/escort/internal/tools"
)

// unknownErrorMessage is the generic fallback when a failure payload carries
// no usable message at all.
const unknownErrorMessage = "unknown error"

// ExtractErrorMessage pulls a human-meaningful message from a failure-shaped
// payload: a structured error field first, then a message field, then the
// payload itself rendered as JSON. Only a genuinely empty payload degrades to
// the generic fallback; a non-empty but non-standard payload is never
// silently coerced to "unknown error".
func ExtractErrorMessage(payload map[string]any) string {
	for _, key := range []string{"error", "message"} {
		if v, ok := payload[key]; ok {
			switch msg := v.(type) {
			case string:
				if msg != "" {
					return msg
				}
			default:
				if v != nil {
					return fmt.Sprintf("%v", v)
				}
			}
		}
	}

	if len(payload) > 0 {
		if data, err := json.Marshal(payload); err == nil {
			return string(data)
		}
	}

	return unknownErrorMessage
}

// itemErrorMessage renders a fan-out item failure. Tool failures carrying a
// payload go through message extraction; everything else uses the error text.
func itemErrorMessage(err error) string {
	var ie *tools.InvokeError
	if errors.As(err, &ie) && ie.Payload != nil {
		return ExtractErrorMessage(ie.Payload)
	}
	return err.Error()
}
