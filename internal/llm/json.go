package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject returns the span from the first '{' to the last '}',
// which survives prose or code fences around the object.
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseJSONResponse parses the JSON object embedded in an LLM reply.
func ParseJSONResponse(text string) map[string]any {
	obj, ok := ExtractJSONObject(strings.TrimSpace(text))
	if !ok {
		return nil
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(obj), &result); err != nil {
		return nil
	}
	return result
}

// GetString reads a string field, falling back when absent or mistyped.
func GetString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// GetInt reads a numeric field, also accepting numeric strings.
func GetInt(m map[string]any, key string, fallback int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return int(i)
			}
		case string:
			var i int
			if err := json.Unmarshal([]byte(strings.TrimSpace(n)), &i); err == nil {
				return i
			}
		}
	}
	return fallback
}
