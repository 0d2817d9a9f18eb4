package agents

import (
	"encoding/json"
	"strings"
)

// extractText pulls a usable prompt string out of an arbitrary payload.
// A JSON string is used directly; for objects the given keys are tried
// in order, falling back to the compact JSON encoding.
func extractText(payload json.RawMessage, keys ...string) string {
	if len(payload) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err == nil {
		for _, key := range keys {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			var v string
			if err := json.Unmarshal(raw, &v); err == nil {
				return v
			}
			return string(raw)
		}
	}
	return string(payload)
}

// payloadKeys returns the top-level keys of an object payload.
func payloadKeys(payload json.RawMessage) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

func hasAnyKey(payload json.RawMessage, wanted ...string) bool {
	for _, k := range payloadKeys(payload) {
		for _, w := range wanted {
			if k == w {
				return true
			}
		}
	}
	return false
}

// stripCodeFences removes a surrounding markdown code fence, if present.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line.
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
