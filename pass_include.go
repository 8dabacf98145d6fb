package springview

import "fmt"

// includePass expands {#(name)} into an include of name's artifact,
// building that artifact first.
func (c *compiler) includePass(src string) (string, error) {
	unclosed := tagError(ErrMalformedTag, "include", `unterminated embedded file tag "{#(...)}"`)
	return rewriteTags(src, "{#(", ")}", unclosed, func(body string) (string, error) {
		name := stripQuotes(body)
		if name == "" {
			return "", tagError(ErrMalformedTag, "include", "incorrect embedded filename")
		}
		path := c.engine.resolve(name)
		if !fileExists(path) {
			return "", &Error{Kind: ErrMissingTemplate, Op: "include", Path: path,
				Msg: fmt.Sprintf("embedded file %q does not exist", name)}
		}
		for _, p := range c.chain {
			if p == path {
				return "", tagError(ErrMalformedTag, "include", fmt.Sprintf("recursive inclusion of %q", name))
			}
		}
		loc, err := c.engine.cache.nested(path, c.chain)
		if err != nil {
			return "", err
		}
		return c.emit(instr{Op: opInclude, Text: name, Path: path, Artifact: loc}), nil
	})
}
