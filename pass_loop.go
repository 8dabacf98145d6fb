package springview

import (
	"strings"
)

// loopPass expands {@($src)}…{/@} loops and their {@@…}…{/@@} sub-loops.
// Sub-loops are resolved before the outer loop's own @. accessors and {@!}
// marker.
func (c *compiler) loopPass(src string) (string, error) {
	var sb strings.Builder
	for {
		before, tag, rest, found, closed := cutTag(src, "{@(", ")}")
		if !found {
			break
		}
		if !closed {
			return "", tagError(ErrMalformedTag, "loop", `unterminated loop tag "{@(...)}"`)
		}
		tag = fastTrim(tag)
		if tag == "" || tag[0] != '$' {
			return "", tagError(ErrInvalidLoopSource, "loop", `incorrect variable name of loop tag "{@($var_name)}"`)
		}
		end := strings.Index(rest, "{/@}")
		if end == -1 {
			return "", tagError(ErrUnterminatedTag, "loop", `loop tag "{@(...)}" without "{/@}"`)
		}
		body, after := rest[:end], rest[end+len("{/@}"):]

		body, err := c.subLoops(body)
		if err != nil {
			return "", err
		}
		body, err = rowAccess(body, "@.", "_row", `{@.name}`)
		if err != nil {
			return "", err
		}
		if strings.Contains(body, "{@!}") {
			body = strings.ReplaceAll(body, "{@!}", c.emit(instr{Op: opLoopElse, Level: 0}))
		}

		sb.WriteString(before)
		sb.WriteString(c.emit(instr{Op: opLoop, Level: 0, Expr: tag}))
		sb.WriteString(body)
		sb.WriteString(c.emit(instr{Op: opLoopEnd, Level: 0}))
		src = after
	}
	if sb.Len() == 0 {
		return src, nil
	}
	sb.WriteString(src)
	return sb.String(), nil
}

// subLoops expands {@@}, {@@.name} and {@@(expr)} inside one loop body.
func (c *compiler) subLoops(body string) (string, error) {
	var sb strings.Builder
	for {
		before, tag, rest, found, closed := cutTag(body, "{@@", "}")
		if !found {
			break
		}
		if !closed {
			return "", tagError(ErrMalformedTag, "loop", `unterminated sub loop tag "{@@...}"`)
		}
		tag = fastTrim(tag)
		var source string
		switch {
		case tag == "":
			source = "$_row"
		case tag[0] == '.' && len(tag) > 1 && scanName(tag, 1) == len(tag):
			source = `$_row["` + tag[1:] + `"]`
		case len(tag) > 2 && tag[0] == '(' && tag[len(tag)-1] == ')' && fastTrim(tag[1:len(tag)-1]) != "":
			var err error
			source, err = rowAccess(fastTrim(tag[1:len(tag)-1]), "@.", "_row", `{@.name}`)
			if err != nil {
				return "", err
			}
		default:
			return "", tagError(ErrInvalidLoopSource, "loop", `incorrect variable name of sub loop tag "{@@...}"`)
		}

		end := strings.Index(rest, "{/@@}")
		if end == -1 {
			return "", tagError(ErrUnterminatedTag, "loop", `sub loop tag "{@@...}" without "{/@@}"`)
		}
		unit, after := rest[:end], rest[end+len("{/@@}"):]
		unit, err := rowAccess(unit, "@:", "__row", `{@:name}`)
		if err != nil {
			return "", err
		}
		if strings.Contains(unit, "{@@!}") {
			unit = strings.ReplaceAll(unit, "{@@!}", c.emit(instr{Op: opLoopElse, Level: 1}))
		}

		sb.WriteString(before)
		sb.WriteString(c.emit(instr{Op: opLoop, Level: 1, Expr: source}))
		sb.WriteString(unit)
		sb.WriteString(c.emit(instr{Op: opLoopEnd, Level: 1}))
		body = after
	}
	if sb.Len() == 0 {
		return body, nil
	}
	sb.WriteString(body)
	return sb.String(), nil
}

// rowAccess rewrites every prefix+name token of s into a field access on
// the given row variable.
func rowAccess(s, prefix, row, form string) (string, error) {
	if !strings.Contains(s, prefix) {
		return s, nil
	}
	var sb strings.Builder
	for {
		i := strings.Index(s, prefix)
		if i == -1 {
			break
		}
		start := i + len(prefix)
		end := scanName(s, start)
		if end == start {
			return "", tagError(ErrUnterminatedTag, "loop", `incorrect name of loop tag "`+form+`"`)
		}
		sb.WriteString(s[:i])
		sb.WriteString(`$` + row + `["` + s[start:end] + `"]`)
		s = s[end:]
	}
	sb.WriteString(s)
	return sb.String(), nil
}
