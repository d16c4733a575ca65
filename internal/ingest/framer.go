package ingest

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject scans buf for the first complete, balanced top-level
// JSON object and reports it alongside the unconsumed remainder.
//
// buf is first normalized by trimming each physical line and joining them
// without a separator, so a pretty-printed object spanning several
// read_line calls is framed the same as a single-line one. The scan tracks
// brace depth, string-literal state and backslash escapes so braces or
// quotes inside a JSON string never affect framing (spec P2). The first '{'
// seen outside a string wins; anything before it is discarded once a
// complete object is found. A candidate is validated with a full JSON
// parse before being accepted — an unbalanced decode failure is reported
// as "not yet complete", not an error, since more bytes may still arrive.
func ExtractJSONObject(buf string) (object string, remainder string, ok bool) {
	normalized := joinLines(buf)

	depth := 0
	inString := false
	escapeNext := false
	start := -1

	for i, c := range normalized {
		if escapeNext {
			escapeNext = false
			continue
		}

		switch {
		case c == '\\' && inString:
			escapeNext = true
		case c == '"':
			inString = !inString
		case c == '{' && !inString:
			if start < 0 {
				start = i
			}
			depth++
		case c == '}' && !inString:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidate := normalized[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, normalized[i+1:], true
				}
				return "", buf, false
			}
		}
	}

	return "", buf, false
}

// joinLines trims leading/trailing whitespace from every physical line and
// concatenates them without inserting a separator, preserving internal
// spacing within each line.
func joinLines(buf string) string {
	lines := strings.Split(buf, "\n")
	var b strings.Builder
	b.Grow(len(buf))
	for _, line := range lines {
		b.WriteString(strings.TrimSpace(line))
	}
	return b.String()
}
