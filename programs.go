package springview

import (
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
)

// ----------------------------- Program cache --------------------------------

const defaultProgramCacheSize = 256

// programCache keeps assembled artifacts in memory, keyed by artifact
// location. An entry is only served while the artifact file still has the
// modification time and size it was decoded from.
type programCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type cachedProgram struct {
	modTime time.Time
	size    int64
	root    seqNode
}

func newProgramCache(size int) *programCache {
	if size <= 0 {
		size = defaultProgramCacheSize
	}
	return &programCache{cache: lru.New(size)}
}

func (p *programCache) get(loc string, info fs.FileInfo) (seqNode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cache.Get(loc)
	if !ok {
		return nil, false
	}
	cp := v.(*cachedProgram)
	if !cp.modTime.Equal(info.ModTime()) || cp.size != info.Size() {
		p.cache.Remove(loc)
		return nil, false
	}
	return cp.root, true
}

func (p *programCache) add(loc string, info fs.FileInfo, root seqNode) {
	p.mu.Lock()
	p.cache.Add(loc, &cachedProgram{modTime: info.ModTime(), size: info.Size(), root: root})
	p.mu.Unlock()
}

func (p *programCache) remove(loc string) {
	p.mu.Lock()
	p.cache.Remove(loc)
	p.mu.Unlock()
}

func (p *programCache) clear() {
	p.mu.Lock()
	p.cache.Clear()
	p.mu.Unlock()
}

// program returns the executable tree of source, going through the artifact
// cache first so that purged or stale artifacts are rebuilt. An artifact
// that cannot be decoded is dropped and rebuilt once.
func (e *Engine) program(source string) (seqNode, error) {
	for attempt := 0; ; attempt++ {
		loc, err := e.cache.get(source)
		if err != nil {
			return nil, err
		}
		root, err := e.decode(loc)
		if err == nil {
			return root, nil
		}
		if attempt > 0 {
			return nil, err
		}
		e.log.Debug("artifact unusable, rebuilding", "source", source, "artifact", loc, "error", err)
		e.programs.remove(loc)
		if rmErr := os.Remove(loc); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return nil, wrapError(ErrIO, "load", loc, rmErr)
		}
	}
}

func (e *Engine) decode(loc string) (seqNode, error) {
	info, err := os.Stat(loc)
	if err != nil {
		return nil, wrapError(ErrIO, "load", loc, err)
	}
	if root, ok := e.programs.get(loc, info); ok {
		return root, nil
	}
	art, err := e.cache.read(loc)
	if err != nil {
		return nil, err
	}
	root, err := assemble(art.Program, e.exprs)
	if err != nil {
		return nil, withPath(err, art.Source)
	}
	e.programs.add(loc, info, root)
	return root, nil
}

// withPath fills in the path of an *Error that has none.
func withPath(err error, path string) error {
	var se *Error
	if errors.As(err, &se) && se.Path == "" {
		se.Path = path
	}
	return err
}
