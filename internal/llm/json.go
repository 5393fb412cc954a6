package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON value.
var ErrNoJSON = errors.New("no JSON found in response")

// DecodeJSON locates the first JSON array or object in text and decodes it
// into v.
func DecodeJSON(text string, v any) error {
	raw, ok := ExtractJSON(text)
	if !ok {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(raw), v)
}

// ExtractJSON strips code fences and returns the first balanced [...] or
// {...} run in text. Brackets inside string literals are ignored.
func ExtractJSON(text string) (string, bool) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}

	start := strings.IndexAny(text, "[{")
	for start >= 0 {
		if end, ok := matchClose(text, start); ok {
			return text[start : end+1], true
		}
		next := strings.IndexAny(text[start+1:], "[{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "```"); i >= 0 {
			text = text[i:]
		} else {
			return text
		}
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx < 1 {
		return ""
	}
	return strings.Join(lines[1:endIdx], "\n")
}

// matchClose returns the index of the bracket closing the one at start.
func matchClose(text string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
