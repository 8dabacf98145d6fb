package springview

import (
	"strings"
)

// attrNames are the boolean attributes with an attr_name="expr" shortcut.
var attrNames = [...]string{"disabled", "checked", "selected", "readonly"}

// shortcutPass expands var_name, attr_*="expr" and <!--{ statements }-->,
// in that order.
func (c *compiler) shortcutPass(src string) (string, error) {
	src, err := c.varShortcuts(src)
	if err != nil {
		return "", err
	}
	for _, name := range attrNames {
		if src, err = c.attrShortcuts(src, name); err != nil {
			return "", err
		}
	}
	return c.rawStatements(src), nil
}

func (c *compiler) varShortcuts(src string) (string, error) {
	if !strings.Contains(src, "var_") {
		return src, nil
	}
	var sb strings.Builder
	for {
		i := strings.Index(src, "var_")
		if i == -1 {
			break
		}
		end := scanName(src, i+4)
		if end == i+4 {
			return "", tagError(ErrMalformedTag, "shortcut", `incorrect name of variable tag "var_name"`)
		}
		sb.WriteString(src[:i])
		sb.WriteString(c.emit(instr{Op: opEcho, Expr: "$" + src[i+4:end]}))
		src = src[end:]
	}
	sb.WriteString(src)
	return sb.String(), nil
}

func (c *compiler) attrShortcuts(src, name string) (string, error) {
	prefix := "attr_" + name + "="
	if !strings.Contains(src, prefix) {
		return src, nil
	}
	var sb strings.Builder
	for {
		i := strings.Index(src, prefix)
		if i == -1 {
			break
		}
		rest := strings.TrimLeft(src[i+len(prefix):], " \t")
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			return "", tagError(ErrMalformedTag, "shortcut", `attribute tag "attr_`+name+`" expects a quoted expression`)
		}
		end := strings.IndexByte(rest[1:], rest[0])
		if end == -1 || fastTrim(rest[1:1+end]) == "" {
			return "", tagError(ErrMalformedTag, "shortcut", `incorrect expression of attribute tag "attr_`+name+`"`)
		}
		sb.WriteString(src[:i])
		sb.WriteString(c.emit(instr{Op: opAttr, Text: name, Expr: fastTrim(rest[1 : 1+end])}))
		src = rest[end+2:]
	}
	sb.WriteString(src)
	return sb.String(), nil
}

// rawStatements turns <!--{ … }--> into host statements. An opener
// without its closer stays literal text.
func (c *compiler) rawStatements(src string) string {
	var sb strings.Builder
	for {
		before, body, after, found, closed := cutTag(src, "<!--{", "}-->")
		if !found || !closed {
			break
		}
		sb.WriteString(before)
		if stmts := splitStatements(body); len(stmts) > 0 {
			sb.WriteString(c.emit(instr{Op: opExec, Stmts: stmts}))
		}
		src = after
	}
	if sb.Len() == 0 {
		return src
	}
	sb.WriteString(src)
	return sb.String()
}
