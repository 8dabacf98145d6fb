package springview

import (
	"strconv"
	"strings"
)

// ----------------------------- Compiler -------------------------------------

// markerByte delimits instruction markers inside the text being rewritten.
// Source text may not contain it.
const markerByte = '\x00'

// compiler runs the directive passes over one template source. Passes
// rewrite a string; every instruction a pass emits is stored in prog and
// leaves a marker in the text, so later passes only ever see literal text.
type compiler struct {
	engine *Engine
	ec     *exprCompiler
	path   string
	chain  []string
	prog   []instr
}

type pass struct {
	name string
	run  func(*compiler, string) (string, error)
}

// passes run in this order; later passes act on the text produced by
// earlier ones.
var passes = []pass{
	{"include", (*compiler).includePass},
	{"loop", (*compiler).loopPass},
	{"conditional", (*compiler).conditionalPass},
	{"expression", (*compiler).expressionPass},
	{"shortcut", (*compiler).shortcutPass},
	{"block", (*compiler).blockPass},
}

func newCompiler(e *Engine, ec *exprCompiler, path string, chain []string) *compiler {
	c := &compiler{engine: e, ec: ec, path: path}
	c.chain = append(append(c.chain, chain...), path)
	return c
}

func (c *compiler) emit(in instr) string {
	c.prog = append(c.prog, in)
	return string(markerByte) + strconv.Itoa(len(c.prog)-1) + string(markerByte)
}

// emitText protects literal output produced by a pass from later passes.
func (c *compiler) emitText(s string) string {
	if s == "" {
		return ""
	}
	return c.emit(instr{Op: opText, Text: s})
}

// compile runs every pass and returns the flat program. The program is
// assembled once so that structural and expression errors fail the build.
func (c *compiler) compile(src string) ([]instr, error) {
	if strings.IndexByte(src, markerByte) != -1 {
		return nil, tagError(ErrMalformedTag, "compile", "source contains a NUL byte")
	}
	var err error
	for _, p := range passes {
		if src, err = p.run(c, src); err != nil {
			return nil, err
		}
	}
	prog, err := c.flatten(src)
	if err != nil {
		return nil, err
	}
	if _, err := assemble(prog, c.ec); err != nil {
		return nil, err
	}
	return prog, nil
}

// flatten splits the rewritten text into literal and emitted instructions.
func (c *compiler) flatten(src string) ([]instr, error) {
	out := make([]instr, 0, len(c.prog)*2+1)
	for {
		start := strings.IndexByte(src, markerByte)
		if start == -1 {
			break
		}
		end := strings.IndexByte(src[start+1:], markerByte)
		if end == -1 {
			return nil, tagError(ErrMalformedTag, "compile", "broken instruction marker")
		}
		idx, err := strconv.Atoi(src[start+1 : start+1+end])
		if err != nil || idx < 0 || idx >= len(c.prog) {
			return nil, tagError(ErrMalformedTag, "compile", "broken instruction marker")
		}
		if start > 0 {
			out = append(out, instr{Op: opText, Text: src[:start]})
		}
		out = append(out, c.prog[idx])
		src = src[start+end+2:]
	}
	if src != "" {
		out = append(out, instr{Op: opText, Text: src})
	}
	return mergeText(out), nil
}

// mergeText joins adjacent literal instructions.
func mergeText(prog []instr) []instr {
	out := prog[:0]
	for _, in := range prog {
		if in.Op == opText && len(out) > 0 && out[len(out)-1].Op == opText {
			out[len(out)-1].Text += in.Text
			continue
		}
		out = append(out, in)
	}
	return out
}
