package extractor

import (
	"encoding/json"
	"strings"

	"oto-insights-go/internal/services"
)

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}

// decode parses the JSON object in content into target.
func decode(task, content string, target any) error {
	raw := extractJSON(content)
	if raw == "" {
		return services.Wrap(services.ErrProvider, "llm", task, "no JSON object in response", nil)
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return services.Wrap(services.ErrProvider, "llm", task, "malformed JSON", err)
	}
	return nil
}

// invalid reports a response that parsed but failed validation.
func invalid(task, reason string) error {
	return services.Wrap(services.ErrProvider, "llm", task, "invalid response: "+reason, nil)
}
