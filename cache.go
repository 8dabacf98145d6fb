package springview

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

// ----------------------------- Artifact cache -------------------------------

// artifactRef names a compiled template: its resolved source path and the
// artifact file it was compiled to.
type artifactRef struct {
	source   string
	location string
}

// buildFunc compiles one source into an artifact. chain lists the sources
// whose builds are in progress above this one.
type buildFunc func(source string, chain []string) (*artifact, error)

// artifactCache maps resolved source paths to artifact files under dir and
// decides when an artifact must be rebuilt.
type artifactCache struct {
	mu    sync.RWMutex
	dir   string
	ext   string
	codec codec
	ttl   int

	now     func() time.Time
	build   buildFunc
	log     *slog.Logger
	metrics *engineMetrics
	group   singleflight.Group
}

type cacheSettings struct {
	dir   string
	ext   string
	codec codec
	ttl   int
}

func (c *artifactCache) settings() cacheSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cacheSettings{dir: c.dir, ext: c.ext, codec: c.codec, ttl: c.ttl}
}

func (c *artifactCache) setDir(dir string) {
	c.mu.Lock()
	c.dir = dir
	c.mu.Unlock()
}

func (c *artifactCache) setExt(ext string) {
	c.mu.Lock()
	c.ext = ext
	c.codec = codecFor(ext)
	c.mu.Unlock()
}

func (c *artifactCache) setTTL(seconds int) {
	c.mu.Lock()
	c.ttl = seconds
	c.mu.Unlock()
}

// cacheKey is a content-independent hash of the resolved source path.
func cacheKey(source string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(source))
}

func (s cacheSettings) location(source string) (string, error) {
	if s.dir == "" {
		return "", newError(ErrCachePathInvalid, "cache", "", "cache path is not set")
	}
	return s.dir + cacheKey(source) + "." + s.ext, nil
}

// location returns where the artifact of source lives.
func (c *artifactCache) location(source string) (string, error) {
	return c.settings().location(source)
}

// get returns the location of a valid artifact for source, building it when
// absent or stale. Concurrent builds of the same artifact are collapsed.
func (c *artifactCache) get(source string) (string, error) {
	s := c.settings()
	loc, err := s.location(source)
	if err != nil {
		return "", err
	}
	if c.fresh(s, loc, source, true) {
		return loc, nil
	}
	_, err, _ = c.group.Do(loc, func() (any, error) {
		// the lookup above already counted this miss
		if c.fresh(s, loc, source, false) {
			return nil, nil
		}
		return nil, c.rebuild(s, loc, source, nil)
	})
	if err != nil {
		return "", err
	}
	return loc, nil
}

// nested is get for includes resolved while another build is running. It
// bypasses the build group so that mutually including templates built from
// different goroutines cannot wait on each other; the include chain
// reports the cycle instead.
func (c *artifactCache) nested(source string, chain []string) (string, error) {
	s := c.settings()
	loc, err := s.location(source)
	if err != nil {
		return "", err
	}
	if c.fresh(s, loc, source, true) {
		return loc, nil
	}
	if err := c.rebuild(s, loc, source, chain); err != nil {
		return "", err
	}
	return loc, nil
}

// fresh applies the validity policy. A ttl of 0 keeps an existing artifact
// forever, even when its source changes; only a purge drops it. A stale
// artifact is removed here. Hits and misses are counted only when count is
// set.
func (c *artifactCache) fresh(s cacheSettings, loc, source string, count bool) bool {
	ok := c.valid(s, loc, source)
	if count {
		if ok {
			c.metrics.cacheHits.Inc()
		} else {
			c.metrics.cacheMisses.Inc()
		}
	}
	return ok
}

func (c *artifactCache) valid(s cacheSettings, loc, source string) bool {
	art, err := os.Stat(loc)
	if err != nil {
		c.log.Debug("artifact absent", "source", source, "artifact", loc)
		return false
	}
	if s.ttl == 0 {
		return true
	}
	if src, err := os.Stat(source); err == nil && art.ModTime().After(src.ModTime()) {
		return true
	}
	if c.now().Sub(art.ModTime()) <= time.Duration(s.ttl)*time.Second {
		return true
	}

	c.metrics.stalePurges.Inc()
	if err := os.Remove(loc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.log.Debug("stale artifact not removed", "artifact", loc, "error", err)
	} else {
		c.log.Debug("stale artifact removed", "source", source, "artifact", loc, "reason", "expired")
	}
	return false
}

func (c *artifactCache) rebuild(s cacheSettings, loc, source string, chain []string) error {
	art, err := c.build(source, chain)
	if err != nil {
		c.metrics.buildErrors.Inc()
		return err
	}
	if err := c.write(s, loc, art); err != nil {
		c.metrics.buildErrors.Inc()
		return err
	}
	c.metrics.builds.Inc()
	c.log.Debug("artifact built", "source", source, "artifact", loc, "instructions", len(art.Program))
	return nil
}

// write encodes art into a temporary file next to loc and renames it into
// place, so readers never observe a partial artifact.
func (c *artifactCache) write(s cacheSettings, loc string, art *artifact) error {
	data, err := s.codec.marshal(art)
	if err != nil {
		return wrapError(ErrIO, "cache", loc, fmt.Errorf("encoding artifact: %w", err))
	}
	tmp, err := os.CreateTemp(s.dir, cacheKey(art.Source)+".*.tmp")
	if err != nil {
		return wrapError(ErrIO, "cache", loc, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return wrapError(ErrIO, "cache", loc, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return wrapError(ErrIO, "cache", loc, err)
	}
	if err := os.Rename(name, loc); err != nil {
		os.Remove(name)
		return wrapError(ErrIO, "cache", loc, err)
	}
	return nil
}

// read decodes the artifact stored at loc.
func (c *artifactCache) read(loc string) (*artifact, error) {
	data, err := os.ReadFile(loc)
	if err != nil {
		return nil, wrapError(ErrIO, "cache", loc, err)
	}
	art := new(artifact)
	if err := c.settings().codec.unmarshal(data, art); err != nil {
		return nil, wrapError(ErrIO, "cache", loc, fmt.Errorf("decoding artifact: %w", err))
	}
	if art.Version != artifactVersion {
		return nil, newError(ErrIO, "cache", loc, fmt.Sprintf("artifact version %d, want %d", art.Version, artifactVersion))
	}
	return art, nil
}

// purge removes the artifact of source. A missing artifact is not an error.
func (c *artifactCache) purge(source string) (string, error) {
	loc, err := c.location(source)
	if err != nil {
		return "", err
	}
	if err := os.Remove(loc); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", wrapError(ErrIO, "purge", loc, err)
	}
	c.log.Debug("artifact purged", "source", source, "artifact", loc)
	return loc, nil
}
