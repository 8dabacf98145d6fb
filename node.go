package springview

import (
	"fmt"
	"io"
	"net/url"
	"reflect"
	"sort"

	"github.com/spf13/cast"
)

// ----------------------------- AST & runtime --------------------------------

type node interface {
	render(*renderCtx, io.Writer) error
}

// maxIncludeDepth bounds include nesting at render time.
const maxIncludeDepth = 64

type renderCtx struct {
	engine *Engine
	vars   map[string]any
	query  url.Values
	form   url.Values
	blocks map[string]string
	depth  int
}

// reset binds ctx to one render call. The binding context is the engine
// variables overlaid with the call variables.
func (ctx *renderCtx) reset(e *Engine, base, vars map[string]any, query, form url.Values) {
	ctx.engine = e
	clear(ctx.vars)
	clear(ctx.blocks)
	for k, v := range base {
		ctx.vars[k] = v
	}
	for k, v := range vars {
		ctx.vars[k] = v
	}
	ctx.query = query
	ctx.form = form
	ctx.depth = 0
}

type textNode struct{ text string }

func (n textNode) render(_ *renderCtx, w io.Writer) error {
	_, err := io.WriteString(w, n.text)
	return err
}

type echoNode struct {
	expr       *hostExpr
	source     valueSource
	name       string
	def        string
	hasDefault bool
	guard      bool
	escape     bool
}

func (n *echoNode) render(ctx *renderCtx, w io.Writer) error {
	var v any
	present := false
	switch n.source {
	case fromQuery, fromForm:
		values := ctx.query
		if n.source == fromForm {
			values = ctx.form
		}
		if values.Has(n.name) {
			v, present = values.Get(n.name), true
		}
	default:
		var err error
		v, err = n.expr.eval(ctx.vars)
		if err != nil {
			if !n.guard && !n.hasDefault {
				return err
			}
			v = nil
		}
		present = v != nil
	}

	if n.hasDefault && isEmpty(v) {
		_, err := io.WriteString(w, n.def)
		return err
	}
	if n.guard && !present {
		return nil
	}
	s := toText(v)
	if n.escape {
		s = htmlEscapeFast(s)
	}
	_, err := io.WriteString(w, s)
	return err
}

type condBranch struct {
	cond *hostExpr
	body seqNode
}

type ifNode struct {
	branches []*condBranch
	els      seqNode
}

func (n *ifNode) render(ctx *renderCtx, w io.Writer) error {
	for _, br := range n.branches {
		v, err := br.cond.eval(ctx.vars)
		if err != nil {
			return err
		}
		if truthy(v) {
			return br.body.render(ctx, w)
		}
	}
	return n.els.render(ctx, w)
}

// loopNames are the bindings of the outer loop (level 0) and the sub-loop
// (level 1).
var loopNames = [2]struct{ row, key, no, total, first, last, odd string }{
	{"_row", "_key", "_no", "_total", "_first", "_last", "_odd"},
	{"__row", "__key", "__no", "__total", "__first", "__last", "__odd"},
}

type loopNode struct {
	level int
	src   *hostExpr
	body  seqNode
	els   seqNode
}

type loopItem struct {
	key any
	val any
}

func (n *loopNode) render(ctx *renderCtx, w io.Writer) error {
	v, err := n.src.eval(ctx.vars)
	if err != nil {
		v = nil
	}
	items := collectItems(v)
	if len(items) == 0 {
		return n.els.render(ctx, w)
	}

	names := loopNames[n.level]
	bound := [...]string{names.row, names.key, names.no, names.total, names.first, names.last, names.odd}
	var saved [len(bound)]any
	var had [len(bound)]bool
	for i, name := range bound {
		saved[i], had[i] = ctx.vars[name]
	}
	defer func() {
		for i, name := range bound {
			if had[i] {
				ctx.vars[name] = saved[i]
			} else {
				delete(ctx.vars, name)
			}
		}
	}()

	total := len(items)
	ctx.vars[names.total] = total
	for i, it := range items {
		no := i + 1
		ctx.vars[names.row] = it.val
		ctx.vars[names.key] = it.key
		ctx.vars[names.no] = no
		ctx.vars[names.first] = no == 1
		ctx.vars[names.last] = no == total
		ctx.vars[names.odd] = no%2 == 1
		if err := n.body.render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// collectItems lists the entries of a slice, array or map in source order;
// map entries are ordered by the string form of their keys. Other values
// yield nil.
func collectItems(v any) []loopItem {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		items := make([]loopItem, len(x))
		for i, e := range x {
			items[i] = loopItem{key: i, val: e}
		}
		return items
	case []map[string]any:
		items := make([]loopItem, len(x))
		for i, e := range x {
			items[i] = loopItem{key: i, val: e}
		}
		return items
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]loopItem, len(keys))
		for i, k := range keys {
			items[i] = loopItem{key: k, val: x[k]}
		}
		return items
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]loopItem, rv.Len())
		for i := range items {
			items[i] = loopItem{key: i, val: rv.Index(i).Interface()}
		}
		return items
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return cast.ToString(keys[i].Interface()) < cast.ToString(keys[j].Interface())
		})
		items := make([]loopItem, len(keys))
		for i, k := range keys {
			items[i] = loopItem{key: k.Interface(), val: rv.MapIndex(k).Interface()}
		}
		return items
	}
	return nil
}

type includeNode struct {
	view     string
	source   string
	artifact string
}

func (n *includeNode) render(ctx *renderCtx, w io.Writer) error {
	if ctx.depth >= maxIncludeDepth {
		return fmt.Errorf("include %q: nesting deeper than %d", n.view, maxIncludeDepth)
	}
	root, err := ctx.engine.program(n.source)
	if err != nil {
		return err
	}
	ctx.depth++
	defer func() { ctx.depth-- }()
	return root.render(ctx, w)
}

type attrNode struct {
	name string
	cond *hostExpr
}

func (n *attrNode) render(ctx *renderCtx, w io.Writer) error {
	v, err := n.cond.eval(ctx.vars)
	if err != nil {
		return err
	}
	if !truthy(v) {
		return nil
	}
	_, err = io.WriteString(w, n.name+`="`+n.name+`"`)
	return err
}

type blockNode struct{ flag string }

func (n blockNode) render(ctx *renderCtx, w io.Writer) error {
	s, ok := ctx.blocks[n.flag]
	if !ok {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

type statement struct {
	name string
	expr *hostExpr
}

type execNode struct{ stmts []statement }

func (n *execNode) render(ctx *renderCtx, _ io.Writer) error {
	for _, st := range n.stmts {
		v, err := st.expr.eval(ctx.vars)
		if err != nil {
			return err
		}
		if st.name != "" {
			ctx.vars[st.name] = v
		}
	}
	return nil
}

type seqNode []node

func (s seqNode) render(ctx *renderCtx, w io.Writer) error {
	for _, n := range s {
		if err := n.render(ctx, w); err != nil {
			return err
		}
	}
	return nil
}
