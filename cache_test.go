package springview

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactLocation(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "p"})
	loc, err := e.Compile("page")
	require.NoError(t, err)

	key := cacheKey(e.resolve("page"))
	assert.Len(t, key, 16)
	assert.Equal(t, e.CachePath()+key+".json", loc)
	assert.FileExists(t, loc)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.cacheMisses))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.metrics.cacheHits))

	again, err := e.Compile("page")
	require.NoError(t, err)
	assert.Equal(t, loc, again)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.builds))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.cacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.cacheHits))
}

func TestArtifactIsDecodable(t *testing.T) {
	for _, ext := range []string{"json", "msgpack"} {
		t.Run(ext, func(t *testing.T) {
			e := testEngine(t, map[string]string{"page": `a{=$x}b`}, WithCacheExt(ext))
			loc, err := e.Compile("page")
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(loc, "."+ext))

			art, err := e.cache.read(loc)
			require.NoError(t, err)
			assert.Equal(t, artifactVersion, art.Version)
			assert.Equal(t, e.resolve("page"), art.Source)
			require.Len(t, art.Program, 3)
			assert.Equal(t, opEcho, art.Program[1].Op)

			out, err := e.Render("page", map[string]any{"x": 1})
			require.NoError(t, err)
			assert.Equal(t, "a1b", out)
		})
	}
}

func TestCacheValidity(t *testing.T) {
	old := time.Now().Add(-time.Hour).Truncate(time.Second)

	t.Run("expired artifact is rebuilt", func(t *testing.T) {
		e := testEngine(t, map[string]string{"page": "p"}, WithCacheLifetime(10))
		loc, err := e.Compile("page")
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(loc, old, old))
		require.NoError(t, os.Chtimes(e.resolve("page"), old.Add(time.Minute), old.Add(time.Minute)))

		_, err = e.Compile("page")
		require.NoError(t, err)
		assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.builds))
		assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.stalePurges))
	})

	t.Run("artifact newer than source is kept", func(t *testing.T) {
		e := testEngine(t, map[string]string{"page": "p"}, WithCacheLifetime(10))
		loc, err := e.Compile("page")
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(loc, old, old))
		require.NoError(t, os.Chtimes(e.resolve("page"), old.Add(-time.Minute), old.Add(-time.Minute)))

		_, err = e.Compile("page")
		require.NoError(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.builds))
	})

	t.Run("artifact within lifetime is kept", func(t *testing.T) {
		clock := func() time.Time { return old.Add(5 * time.Second) }
		e := testEngine(t, map[string]string{"page": "p"}, WithCacheLifetime(10), WithClock(clock))
		loc, err := e.Compile("page")
		require.NoError(t, err)
		require.NoError(t, os.Chtimes(loc, old, old))
		require.NoError(t, os.Chtimes(e.resolve("page"), old.Add(time.Minute), old.Add(time.Minute)))

		_, err = e.Compile("page")
		require.NoError(t, err)
		assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.builds))
	})
}

// A lifetime of 0 never expires an artifact, even when the source changes.
func TestZeroLifetimeIgnoresSourceEdits(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "v1"}, WithCacheLifetime(0))
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)

	path := writeView(t, e.ViewPath(), "page", "v2")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)

	require.NoError(t, e.CleanCache("page"))
	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
}

func TestSourceEditRebuildsWithLifetime(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "v1"}, WithCacheLifetime(1),
		WithClock(func() time.Time { return time.Now().Add(time.Hour) }))
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", out)

	path := writeView(t, e.ViewPath(), "page", "v2")
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
}

func TestCorruptArtifactIsRebuilt(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "fine"})
	loc, err := e.Compile("page")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(loc, []byte("{not json"), 0o644))

	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
}

func TestCleanCache(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "p"})

	assert.ErrorIs(t, e.CleanCache(""), ErrTemplateNotFound)
	assert.ErrorIs(t, e.CleanCache("missing"), ErrTemplateNotFound)
	require.NoError(t, e.CleanCache("page"))

	loc, err := e.Compile("page")
	require.NoError(t, err)
	require.NoError(t, e.CleanCache("page"))
	assert.NoFileExists(t, loc)
}

func TestCachePathRequired(t *testing.T) {
	viewDir := t.TempDir()
	writeView(t, viewDir, "page", "p")
	e, err := New(viewDir, "")
	require.NoError(t, err)

	_, err = e.Render("page", nil)
	assert.ErrorIs(t, err, ErrCachePathInvalid)
}

func TestPathSetters(t *testing.T) {
	e := testEngine(t, nil)

	assert.ErrorIs(t, e.SetViewPath(filepath.Join(t.TempDir(), "missing")), ErrInvalidArgument)
	assert.ErrorIs(t, e.SetCachePath(filepath.Join(t.TempDir(), "missing")), ErrCachePathInvalid)
	assert.ErrorIs(t, e.SetCacheLifetime(-1), ErrInvalidArgument)

	dir := t.TempDir()
	require.NoError(t, e.SetCachePath(dir))
	assert.Equal(t, dir+string(filepath.Separator), e.CachePath())
	require.NoError(t, e.SetViewPath(dir+string(filepath.Separator)))
	assert.Equal(t, dir+string(filepath.Separator), e.ViewPath())

	require.NoError(t, e.SetCacheLifetime(0))
	assert.Equal(t, 0, e.CacheLifetime())

	_, err := New(dir, dir, WithCacheLifetime(-5))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestMetricsRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := testEngine(t, map[string]string{"page": "p"}, WithRegisterer(reg))
	_, err := e.Render("page", nil)
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "springview_builds_total", "springview_renders_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.renders.WithLabelValues("ok")))
}

func TestProgramCacheFollowsArtifact(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "p"})
	_, err := e.Render("page", nil)
	require.NoError(t, err)

	loc, err := e.cache.location(e.resolve("page"))
	require.NoError(t, err)
	info, err := os.Stat(loc)
	require.NoError(t, err)
	_, ok := e.programs.get(loc, info)
	assert.True(t, ok)

	later := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(loc, later, later))
	info, err = os.Stat(loc)
	require.NoError(t, err)
	_, ok = e.programs.get(loc, info)
	assert.False(t, ok)
}
