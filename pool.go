package springview

import (
	"bytes"
	"strings"
	"sync"
)

// ----------------------------- Buffer and context pools ---------------------

var bufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

var stringBuilderPool = sync.Pool{New: func() any { return new(strings.Builder) }}

var renderCtxPool = sync.Pool{
	New: func() any {
		return &renderCtx{
			vars:   make(map[string]any, 16),
			blocks: make(map[string]string, 4),
		}
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	// oversized buffers are left to the collector
	if buf.Cap() > 1<<20 {
		return
	}
	bufPool.Put(buf)
}

func getRenderCtx() *renderCtx {
	return renderCtxPool.Get().(*renderCtx)
}

func putRenderCtx(ctx *renderCtx) {
	clear(ctx.vars)
	clear(ctx.blocks)
	ctx.engine = nil
	ctx.query, ctx.form = nil, nil
	renderCtxPool.Put(ctx)
}
