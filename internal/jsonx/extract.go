// Package jsonx extracts JSON objects from LLM output that may be wrapped
// in markdown code fences or surrounded by extraneous prose.
package jsonx

import (
	"encoding/json"
	"strings"
)

// Extract attempts, in order: the content of a fenced code block, the
// first balanced top-level brace pair, then the whole trimmed text.
// It returns nil, false when none of them parse as a JSON object.
func Extract(raw string) (json.RawMessage, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}

	if obj, ok := fromFence(trimmed); ok {
		return obj, true
	}
	if obj, ok := fromBraces(trimmed); ok {
		return obj, true
	}
	if obj, ok := parseObject(trimmed); ok {
		return obj, true
	}
	return nil, false
}

// Unmarshal extracts a JSON object from raw and decodes it into v.
func Unmarshal(raw string, v any) bool {
	obj, ok := Extract(raw)
	if !ok {
		return false
	}
	return json.Unmarshal(obj, v) == nil
}

// fromFence pulls the body out of the first ``` fenced block. An optional
// language tag after the opening fence (e.g. ```json) is skipped.
func fromFence(s string) (json.RawMessage, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return nil, false
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end < 0 {
		return nil, false
	}
	body := rest[:end]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(body[:nl])
		// "json", "JSON" or empty tag lines are fence metadata, not content.
		if firstLine == "" || strings.EqualFold(firstLine, "json") {
			body = body[nl+1:]
		}
	}
	return parseObject(strings.TrimSpace(body))
}

// fromBraces scans for the first balanced top-level {...} slice,
// respecting string and escape context.
func fromBraces(s string) (json.RawMessage, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return parseObject(s[start : i+1])
			}
		}
	}
	return nil, false
}

func parseObject(s string) (json.RawMessage, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}
