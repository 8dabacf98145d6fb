package springview

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ----------------------------- Engine ---------------------------------------

const (
	// DefaultMainFlag is the block flag SetLayout assigns to the rendered
	// view when none is given.
	DefaultMainFlag = "MAIN"

	DefaultViewExt       = "html"
	DefaultCacheExt      = "json"
	DefaultCacheLifetime = 300
)

// blockSource tells where a layout block's content comes from.
type blockSource uint8

const (
	// currentView is the view passed to Render.
	currentView blockSource = iota
	// explicitView is a view fixed by SetBlock.
	explicitView
)

type blockEntry struct {
	flag   string
	source blockSource
	ref    artifactRef
}

// Engine compiles views into cached artifacts and renders them. An Engine
// is safe for concurrent use; configuration changes apply to renders that
// start afterwards.
type Engine struct {
	mu       sync.RWMutex
	viewPath string
	viewExt  string
	vars     map[string]any
	layout   *artifactRef
	blocks   []blockEntry

	cache    *artifactCache
	programs *programCache
	exprs    *exprCompiler
	log      *slog.Logger
	metrics  *engineMetrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	viewExt          string
	cacheExt         string
	cacheLifetime    int
	funcs            Funcs
	helpers          Funcs
	logger           *slog.Logger
	registerer       prometheus.Registerer
	now              func() time.Time
	programCacheSize int
}

// WithViewExt sets the template file extension (default "html").
func WithViewExt(ext string) Option {
	return func(o *engineOptions) { o.viewExt = strings.TrimPrefix(ext, ".") }
}

// WithCacheExt sets the artifact file extension. "msgpack" (or "mpk",
// "mp") stores artifacts as msgpack; anything else as JSON.
func WithCacheExt(ext string) Option {
	return func(o *engineOptions) { o.cacheExt = strings.TrimPrefix(ext, ".") }
}

// WithCacheLifetime sets the artifact lifetime in seconds. 0 keeps
// artifacts until they are purged.
func WithCacheLifetime(seconds int) Option {
	return func(o *engineOptions) { o.cacheLifetime = seconds }
}

// WithFunctions adds free functions callable as {=name(...)}.
func WithFunctions(funcs Funcs) Option {
	return func(o *engineOptions) {
		for name, fn := range funcs {
			o.funcs[name] = fn
		}
	}
}

// WithHelpers adds helpers callable as {=:name(...)}.
func WithHelpers(helpers Funcs) Option {
	return func(o *engineOptions) {
		for name, fn := range helpers {
			o.helpers[name] = fn
		}
	}
}

// WithLogger sets the logger used for cache and build events.
func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithRegisterer registers the engine's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registerer = reg }
}

// WithClock replaces time.Now for cache expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) { o.now = now }
}

// WithProgramCacheSize bounds the number of decoded artifacts kept in
// memory.
func WithProgramCacheSize(n int) Option {
	return func(o *engineOptions) { o.programCacheSize = n }
}

// New creates an engine reading views from viewPath and writing artifacts
// to cachePath. Either path may be empty and set later.
func New(viewPath, cachePath string, opts ...Option) (*Engine, error) {
	eo := engineOptions{
		viewExt:       DefaultViewExt,
		cacheExt:      DefaultCacheExt,
		cacheLifetime: DefaultCacheLifetime,
		funcs:         DefaultFuncs(),
		helpers:       Funcs{},
		logger:        slog.Default(),
		now:           time.Now,
	}
	for _, o := range opts {
		o(&eo)
	}
	if eo.cacheLifetime < 0 {
		return nil, newError(ErrInvalidArgument, "new", "", "cache lifetime must not be negative")
	}

	e := &Engine{
		viewExt:  eo.viewExt,
		vars:     make(map[string]any),
		programs: newProgramCache(eo.programCacheSize),
		exprs:    newExprCompiler(eo.funcs, eo.helpers),
		log:      eo.logger,
		metrics:  newEngineMetrics(eo.registerer),
		now:      eo.now,
	}
	e.cache = &artifactCache{
		ext:     eo.cacheExt,
		codec:   codecFor(eo.cacheExt),
		ttl:     eo.cacheLifetime,
		now:     eo.now,
		build:   e.build,
		log:     eo.logger,
		metrics: e.metrics,
	}

	if viewPath != "" {
		if err := e.SetViewPath(viewPath); err != nil {
			return nil, err
		}
	}
	if cachePath != "" {
		if err := e.SetCachePath(cachePath); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// withSeparator returns dir ending with exactly one path separator.
func withSeparator(dir string) string {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return dir
	}
	return dir + string(filepath.Separator)
}

// SetViewPath sets the directory views are read from. It must be an
// existing, readable directory.
func (e *Engine) SetViewPath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return newError(ErrInvalidArgument, "set view path", dir, "incorrect directory path of view")
	}
	f, err := os.Open(dir)
	if err != nil {
		return wrapError(ErrInvalidArgument, "set view path", dir, err)
	}
	f.Close()

	e.mu.Lock()
	e.viewPath = withSeparator(dir)
	e.mu.Unlock()
	return nil
}

// ViewPath returns the view directory, ending with a separator.
func (e *Engine) ViewPath() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewPath
}

// ViewExt returns the template file extension.
func (e *Engine) ViewExt() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewExt
}

// SetCachePath sets the directory artifacts are written to. It must be an
// existing, writable directory.
func (e *Engine) SetCachePath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return newError(ErrCachePathInvalid, "set cache path", dir, "incorrect directory path of cache")
	}
	probe, err := os.CreateTemp(dir, ".springview-probe-*")
	if err != nil {
		return wrapError(ErrCachePathInvalid, "set cache path", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	e.cache.setDir(withSeparator(dir))
	return nil
}

// CachePath returns the artifact directory, ending with a separator.
func (e *Engine) CachePath() string {
	return e.cache.settings().dir
}

// SetCacheLifetime sets the artifact lifetime in seconds.
func (e *Engine) SetCacheLifetime(seconds int) error {
	if seconds < 0 {
		return newError(ErrInvalidArgument, "set cache lifetime", "", "incorrect parameter value")
	}
	e.cache.setTTL(seconds)
	return nil
}

// CacheLifetime returns the artifact lifetime in seconds.
func (e *Engine) CacheLifetime() int {
	return e.cache.settings().ttl
}

// Assign stores a variable visible to every render. A nil value is
// ignored.
func (e *Engine) Assign(key string, value any) {
	if value == nil {
		return
	}
	e.mu.Lock()
	e.vars[key] = value
	e.mu.Unlock()
}

// AssignMap stores every entry of vars, nil values included.
func (e *Engine) AssignMap(vars map[string]any) {
	e.mu.Lock()
	for k, v := range vars {
		e.vars[k] = v
	}
	e.mu.Unlock()
}

// resolve maps a view name to its source path.
func (e *Engine) resolve(view string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.viewPath + view + "." + e.viewExt
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// source resolves view and checks that it exists.
func (e *Engine) source(op, view string) (string, error) {
	if view == "" {
		return "", newError(ErrTemplateNotFound, op, "", "empty view name")
	}
	path := e.resolve(view)
	if !fileExists(path) {
		return "", newError(ErrTemplateNotFound, op, path, "the view \""+view+"\" does not exist")
	}
	return path, nil
}

// Compile builds the artifact of view if it is absent or stale and
// returns its location.
func (e *Engine) Compile(view string) (string, error) {
	path, err := e.source("compile", view)
	if err != nil {
		return "", err
	}
	return e.cache.get(path)
}

// CleanCache deletes the artifact of view. A view that was never compiled
// is not an error.
func (e *Engine) CleanCache(view string) error {
	path, err := e.source("clean cache", view)
	if err != nil {
		return err
	}
	loc, err := e.cache.purge(path)
	if err != nil {
		return err
	}
	e.programs.remove(loc)
	return nil
}

// SetLayout compiles layout and makes every later render execute it, with
// the rendered view captured under mainFlag (DefaultMainFlag if omitted).
// The rendered view is captured under one flag only; a flag that held it
// from an earlier call is dropped.
func (e *Engine) SetLayout(layout string, mainFlag ...string) error {
	flag := DefaultMainFlag
	if len(mainFlag) > 0 {
		flag = mainFlag[0]
	}
	if layout == "" || flag == "" {
		return newError(ErrInvalidArgument, "set layout", "", "wrong layout parameters")
	}
	path, err := e.source("set layout", layout)
	if err != nil {
		return err
	}
	loc, err := e.cache.get(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.layout = &artifactRef{source: path, location: loc}
	e.blocks = slices.DeleteFunc(e.blocks, func(b blockEntry) bool {
		return b.source == currentView && b.flag != flag
	})
	e.setBlockLocked(blockEntry{flag: flag, source: currentView})
	e.mu.Unlock()
	return nil
}

// SetBlock compiles view and captures its output under flag whenever a
// layout is rendered. An existing flag is replaced in place.
func (e *Engine) SetBlock(flag, view string) error {
	if flag == "" || view == "" {
		return newError(ErrInvalidArgument, "set block", "", "wrong block parameters")
	}
	path, err := e.source("set block", view)
	if err != nil {
		return err
	}
	loc, err := e.cache.get(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.setBlockLocked(blockEntry{flag: flag, source: explicitView, ref: artifactRef{source: path, location: loc}})
	e.mu.Unlock()
	return nil
}

func (e *Engine) setBlockLocked(b blockEntry) {
	for i := range e.blocks {
		if e.blocks[i].flag == b.flag {
			e.blocks[i] = b
			return
		}
	}
	e.blocks = append(e.blocks, b)
}

// build compiles one source file into an artifact.
func (e *Engine) build(source string, chain []string) (*artifact, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newError(ErrTemplateNotFound, "build", source, "template source does not exist")
		}
		return nil, wrapError(ErrIO, "build", source, err)
	}
	text := string(data)
	if fastTrim(text) == "" {
		return nil, newError(ErrEmptySource, "build", source, "")
	}
	prog, err := newCompiler(e, e.exprs, source, chain).compile(text)
	if err != nil {
		return nil, withPath(err, source)
	}
	return &artifact{
		Version: artifactVersion,
		Source:  source,
		Built:   e.now().UTC(),
		Program: prog,
	}, nil
}
