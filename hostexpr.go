package springview

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"
)

// ----------------------------- Host expressions -----------------------------

// hostExpr is a compiled host expression. src keeps the template spelling
// (with $ sigils) for error messages.
type hostExpr struct {
	src  string
	prog *vm.Program
}

func (h *hostExpr) eval(vars map[string]any) (any, error) {
	out, err := expr.Run(h.prog, vars)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", h.src, err)
	}
	return out, nil
}

// exprCompiler compiles host expressions against a fixed function set.
type exprCompiler struct {
	opts    []expr.Option
	known   map[string]bool
	helpers map[string]bool
}

var builtinNames = func() map[string]bool {
	m := make(map[string]bool, len(builtin.Names))
	for _, n := range builtin.Names {
		m[n] = true
	}
	return m
}()

func newExprCompiler(funcs, helpers Funcs) *exprCompiler {
	ec := &exprCompiler{
		known:   make(map[string]bool, len(funcs)),
		helpers: make(map[string]bool, len(helpers)),
	}
	ec.opts = []expr.Option{
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	}
	for name, fn := range funcs {
		ec.known[name] = true
		ec.opts = append(ec.opts, expr.Function(name, fn))
	}
	// helpers win on a name clash
	for name, fn := range helpers {
		ec.helpers[name] = true
		ec.opts = append(ec.opts, expr.Function(name, fn))
	}
	return ec
}

// isFunction reports whether name may be called as a free function.
func (ec *exprCompiler) isFunction(name string) bool {
	return ec.known[name] || builtinNames[name]
}

func (ec *exprCompiler) isHelper(name string) bool { return ec.helpers[name] }

func (ec *exprCompiler) compile(src string) (*hostExpr, error) {
	prog, err := expr.Compile(stripSigils(src), ec.opts...)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", src, err)
	}
	return &hostExpr{src: src, prog: prog}, nil
}

// stripSigils removes the $ in front of variable names outside string
// literals, so "$user.name" reads as "user.name".
func stripSigils(src string) string {
	if strings.IndexByte(src, '$') == -1 {
		return src
	}
	var sb strings.Builder
	sb.Grow(len(src))
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' && i+1 < len(src) {
				sb.WriteByte(c)
				i++
				c = src[i]
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '$' && i+1 < len(src) && isNameChar(src[i+1]) && !isDigitByte(src[i+1]):
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func isDigitByte(b byte) bool { return b >= '0' && b <= '9' }

// splitAssignment recognizes "name = expr" (name may carry a $ sigil).
func splitAssignment(stmt string) (name, rhs string, ok bool) {
	s := strings.TrimPrefix(stmt, "$")
	end := scanName(s, 0)
	if end == 0 || isDigitByte(s[0]) {
		return "", "", false
	}
	rest := strings.TrimLeft(s[end:], " \t")
	if len(rest) < 2 || rest[0] != '=' || rest[1] == '=' {
		return "", "", false
	}
	return s[:end], fastTrim(rest[1:]), true
}
