package springview

import (
	"strconv"
	"strings"
)

// expressionPass expands {=…} tags. The first character of the tag picks
// the category: $ variable, G./P. request parameter, :helper call, (expr),
// or a bare function call. Anything else prints as literal text.
func (c *compiler) expressionPass(src string) (string, error) {
	return rewriteTags(src, "{=", "}",
		tagError(ErrMalformedTag, "expression", `unterminated variable tag "{=...}"`),
		func(body string) (string, error) {
			tag := strings.TrimLeft(body, " \t\r\n")
			if fastTrim(tag) == "" {
				return "", tagError(ErrMalformedTag, "expression", `incorrect name of variable tag "{=...}"`)
			}
			return c.expressionTag(tag)
		})
}

func (c *compiler) expressionTag(tag string) (string, error) {
	switch {
	case tag[0] == '$':
		expr, def, hasDef := splitDefault(tag)
		return c.emit(instr{Op: opEcho, Expr: expr, Default: def, HasDefault: hasDef, Guard: !hasDef}), nil

	case strings.HasPrefix(tag, "G.") || strings.HasPrefix(tag, "P."):
		source := fromQuery
		if tag[0] == 'P' {
			source = fromForm
		}
		name, def, hasDef := splitDefault(tag[2:])
		if name == "" {
			return "", tagError(ErrMalformedTag, "expression", `incorrect name of variable tag "{=`+tag[:2]+`name}"`)
		}
		return c.emit(instr{Op: opEcho, Source: source, Text: name, Default: def,
			HasDefault: hasDef, Guard: !hasDef, Escape: true}), nil

	case tag[0] == ':':
		expr, def, hasDef := splitDefault(tag[1:])
		if fn := calleeName(expr); fn == "" || !c.ec.isHelper(fn) {
			if hasDef {
				return c.emitText(def), nil
			}
			return "", nil
		}
		return c.emit(instr{Op: opEcho, Expr: expr, Default: def, HasDefault: hasDef}), nil

	case tag[0] == '(':
		expr, def, hasDef := splitDefault(tag)
		if p := strings.IndexByte(expr, ')'); p < 2 {
			// "()" or an unbalanced paren prints as a string literal
			expr = strconv.Quote(expr)
		}
		return c.emit(instr{Op: opEcho, Expr: expr, Default: def, HasDefault: hasDef}), nil
	}

	expr, def, hasDef := splitDefault(tag)
	if fn := calleeName(expr); fn == "" || !c.ec.isFunction(fn) {
		if hasDef {
			return c.emitText(def), nil
		}
		return c.emitText(stripQuotes(expr)), nil
	}
	return c.emit(instr{Op: opEcho, Expr: expr, Default: def, HasDefault: hasDef}), nil
}
