package springview

// blockPass expands {&(flag)} into the captured output of that block.
func (c *compiler) blockPass(src string) (string, error) {
	return rewriteTags(src, "{&(", ")}",
		tagError(ErrMalformedTag, "block", `unterminated tag "{&(...)}"`),
		func(body string) (string, error) {
			flag := stripQuotes(body)
			if flag == "" {
				return "", tagError(ErrMissingExpression, "block", `missing block flag of tag "{&(...)}"`)
			}
			return c.emit(instr{Op: opBlock, Text: flag}), nil
		})
}
