package springview

import "strings"

// conditionalPass expands {?(expr)}, {??(expr)}, {?!} and {/?}. Each form
// is a linear rewrite; block structure is checked when the program is
// assembled.
func (c *compiler) conditionalPass(src string) (string, error) {
	src, err := rewriteTags(src, "{?(", ")}",
		tagError(ErrMalformedTag, "conditional", `unterminated tag "{?(...)}"`),
		func(body string) (string, error) {
			expr := fastTrim(body)
			if expr == "" {
				return "", tagError(ErrMissingExpression, "conditional", `missing expression of tag "{?(...)}"`)
			}
			return c.emit(instr{Op: opIf, Expr: expr}), nil
		})
	if err != nil {
		return "", err
	}

	src, err = rewriteTags(src, "{??(", ")}",
		tagError(ErrMalformedTag, "conditional", `unterminated tag "{??(...)}"`),
		func(body string) (string, error) {
			expr := fastTrim(body)
			if expr == "" {
				return "", tagError(ErrMissingExpression, "conditional", `missing expression of tag "{??(...)}"`)
			}
			return c.emit(instr{Op: opElseIf, Expr: expr}), nil
		})
	if err != nil {
		return "", err
	}

	if strings.Contains(src, "{?!}") {
		src = strings.ReplaceAll(src, "{?!}", c.emit(instr{Op: opElse}))
	}
	if strings.Contains(src, "{/?}") {
		src = strings.ReplaceAll(src, "{/?}", c.emit(instr{Op: opEndIf}))
	}
	return src, nil
}
