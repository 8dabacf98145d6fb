package springview

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ----------------------------- Reloader -------------------------------------

// ReloadCallback is called after a watched view changed on disk and was
// recompiled. err is the compile error, if any.
type ReloadCallback func(view string, err error)

// Reloader polls watched views and purges and recompiles their artifacts
// when the source changes. It makes edits visible even with a cache
// lifetime of 0. Included views are compiled to their own artifacts, so
// editing a partial only recompiles the partial.
type Reloader struct {
	engine        *Engine
	mu            sync.RWMutex
	watched       map[string]*watchInfo
	callbacks     []ReloadCallback
	stopChan      chan struct{}
	stopped       bool
	checkInterval time.Duration
}

type watchInfo struct {
	view        string
	lastModTime time.Time
}

// NewReloader creates a reloader for e checking every interval (1s if 0).
func (e *Engine) NewReloader(interval time.Duration) *Reloader {
	if interval == 0 {
		interval = 1 * time.Second
	}
	return &Reloader{
		engine:        e,
		watched:       make(map[string]*watchInfo),
		stopChan:      make(chan struct{}),
		checkInterval: interval,
	}
}

// Watch adds view to the watch list.
func (rm *Reloader) Watch(view string) error {
	path, err := rm.engine.source("watch", view)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watching view %q: %w", view, err)
	}
	rm.mu.Lock()
	rm.watched[path] = &watchInfo{view: view, lastModTime: info.ModTime()}
	rm.mu.Unlock()
	return nil
}

// WatchDirectory watches every view under the engine's view path.
func (rm *Reloader) WatchDirectory() error {
	root := rm.engine.ViewPath()
	if root == "" {
		return newError(ErrInvalidArgument, "watch", "", "view path is not set")
	}
	suffix := "." + rm.engine.ViewExt()
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return rm.Watch(strings.TrimSuffix(filepath.ToSlash(rel), suffix))
	})
}

// Watched lists the watched views.
func (rm *Reloader) Watched() []string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	views := make([]string, 0, len(rm.watched))
	for _, w := range rm.watched {
		views = append(views, w.view)
	}
	return views
}

// AddCallback registers a function called after each changed view is
// recompiled.
func (rm *Reloader) AddCallback(callback ReloadCallback) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.callbacks = append(rm.callbacks, callback)
}

// Start begins polling in a new goroutine.
func (rm *Reloader) Start() {
	go rm.watchLoop()
}

// Stop ends the watch loop started by Start.
func (rm *Reloader) Stop() {
	rm.mu.Lock()
	if !rm.stopped {
		rm.stopped = true
		close(rm.stopChan)
	}
	rm.mu.Unlock()
}

func (rm *Reloader) watchLoop() {
	ticker := time.NewTicker(rm.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rm.stopChan:
			return
		case <-ticker.C:
			rm.Check()
		}
	}
}

// Check compares every watched view against its last seen mtime once.
func (rm *Reloader) Check() {
	rm.mu.RLock()
	files := make([]string, 0, len(rm.watched))
	for path := range rm.watched {
		files = append(files, path)
	}
	rm.mu.RUnlock()

	for _, path := range files {
		rm.checkFile(path)
	}
}

func (rm *Reloader) checkFile(path string) {
	stat, err := os.Stat(path)
	if err != nil {
		// deleted views keep their artifact until they come back
		return
	}

	rm.mu.Lock()
	info, exists := rm.watched[path]
	changed := exists && !stat.ModTime().Equal(info.lastModTime)
	if changed {
		info.lastModTime = stat.ModTime()
	}
	callbacks := rm.callbacks
	rm.mu.Unlock()
	if !changed {
		return
	}

	err = rm.engine.CleanCache(info.view)
	if err == nil {
		_, err = rm.engine.Compile(info.view)
	}
	rm.engine.log.Debug("view reloaded", "view", info.view, "source", path, "error", err)
	for _, callback := range callbacks {
		callback(info.view, err)
	}
}
