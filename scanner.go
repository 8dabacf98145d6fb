package springview

import (
	"strings"
)

// ----------------------------- Scanner --------------------------------------

// cutTag finds the next open marker in s and the nearest close marker after
// it. found is false when s holds no open marker; closed is false when an
// open marker has no matching close marker.
func cutTag(s, open, close string) (before, body, after string, found, closed bool) {
	start := strings.Index(s, open)
	if start == -1 {
		return s, "", "", false, false
	}
	rest := s[start+len(open):]
	end := strings.Index(rest, close)
	if end == -1 {
		return s[:start], rest, "", true, false
	}
	return s[:start], rest[:end], rest[end+len(close):], true, true
}

// rewriteTags replaces every open…close tag of s with the output of fn.
// Text outside tags is copied verbatim. An unclosed tag fails with
// unclosed.
func rewriteTags(s, open, close string, unclosed *Error, fn func(body string) (string, error)) (string, error) {
	var sb strings.Builder
	for {
		before, body, after, found, closed := cutTag(s, open, close)
		if !found {
			break
		}
		if !closed {
			return "", unclosed
		}
		out, err := fn(body)
		if err != nil {
			return "", err
		}
		sb.WriteString(before)
		sb.WriteString(out)
		s = after
	}
	if sb.Len() == 0 {
		return s, nil
	}
	sb.WriteString(s)
	return sb.String(), nil
}

// isNameChar accepts ASCII letters, digits, underscore and the Latin-1
// range 0x80-0xFF.
func isNameChar(b byte) bool {
	return isAlphaNum(b) || b == '_' || b >= 0x80
}

// scanName returns the end offset of the variable name starting at s[i].
func scanName(s string, i int) int {
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	return i
}

// splitDefault splits "expr|default" on the first top-level, unescaped
// pipe. Pipes inside quotes, brackets or parentheses, escaped pipes and the
// "||" operator do not split.
func splitDefault(body string) (expr, def string, hasDefault bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\\' && i+1 < len(body) && body[i+1] == '|':
			escaped = true
			i++
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == '|' && depth == 0:
			if i+1 < len(body) && body[i+1] == '|' {
				i++
				continue
			}
			expr, def = body[:i], body[i+1:]
			if escaped {
				expr = strings.ReplaceAll(expr, `\|`, "|")
			}
			return fastTrim(expr), stripQuotes(def), true
		}
	}
	if escaped {
		body = strings.ReplaceAll(body, `\|`, "|")
	}
	return fastTrim(body), "", false
}

// stripQuotes trims blanks and quote characters from both ends.
func stripQuotes(s string) string {
	return strings.Trim(s, " \t\r\n'\"")
}

// splitStatements splits raw statements on top-level semicolons.
func splitStatements(s string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth > 0 {
				depth--
			}
		case c == ';' && depth == 0:
			if st := fastTrim(s[start:i]); st != "" {
				out = append(out, st)
			}
			start = i + 1
		}
	}
	if st := fastTrim(s[start:]); st != "" {
		out = append(out, st)
	}
	return out
}

// calleeName returns the identifier before the first "(" of expr, or ""
// when expr is not a call.
func calleeName(expr string) string {
	i := strings.IndexByte(expr, '(')
	if i <= 0 {
		return ""
	}
	name := strings.TrimRight(expr[:i], " \t")
	if name == "" || scanName(name, 0) != len(name) {
		return ""
	}
	return name
}
