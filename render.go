package springview

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"
)

// ----------------------------- Rendering ------------------------------------

// Render executes view with vars layered over the assigned variables and
// returns the output. With a layout set, every registered block is
// rendered first and the layout is returned instead. On error the output
// is empty.
func (e *Engine) Render(view string, vars map[string]any) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := e.render(buf, view, vars, nil, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderRequest is Render with the {=G.name} and {=P.name} stores bound to
// the query and the parsed form body of r.
func (e *Engine) RenderRequest(r *http.Request, view string, vars map[string]any) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", wrapError(ErrInvalidArgument, "render", view, fmt.Errorf("parsing form: %w", err))
	}
	buf := getBuffer()
	defer putBuffer(buf)
	if err := e.render(buf, view, vars, r.URL.Query(), r.PostForm); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Display renders view and writes the output to w. Nothing is written when
// rendering fails.
func (e *Engine) Display(w io.Writer, view string, vars map[string]any) error {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := e.render(buf, view, vars, nil, nil); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}

func (e *Engine) render(w io.Writer, view string, vars map[string]any, query, form url.Values) (err error) {
	start := time.Now()
	defer func() {
		e.metrics.renderSeconds.Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.metrics.renders.WithLabelValues(outcome).Inc()
	}()

	path, err := e.source("render", view)
	if err != nil {
		return err
	}
	root, err := e.program(path)
	if err != nil {
		return err
	}

	ctx := getRenderCtx()
	defer putRenderCtx(ctx)

	e.mu.RLock()
	ctx.reset(e, e.vars, vars, query, form)
	layout := e.layout
	blocks := slices.Clone(e.blocks)
	e.mu.RUnlock()

	if layout == nil {
		if err := root.render(ctx, w); err != nil {
			return fmt.Errorf("render %q: %w", view, err)
		}
		return nil
	}

	for _, b := range blocks {
		tree := root
		if b.source == explicitView {
			if tree, err = e.program(b.ref.source); err != nil {
				return err
			}
		}
		if err := e.capture(ctx, b.flag, tree); err != nil {
			return fmt.Errorf("render %q: block %q: %w", view, b.flag, err)
		}
	}

	lroot, err := e.program(layout.source)
	if err != nil {
		return err
	}
	if err := lroot.render(ctx, w); err != nil {
		return fmt.Errorf("render %q: layout: %w", view, err)
	}
	return nil
}

func (e *Engine) capture(ctx *renderCtx, flag string, tree seqNode) error {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := tree.render(ctx, buf); err != nil {
		return err
	}
	ctx.blocks[flag] = buf.String()
	return nil
}
