package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oarkflow/springview"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupViews(t *testing.T) (views, cache string) {
	t.Helper()
	views, cache = t.TempDir(), t.TempDir()
	files := map[string]string{
		"index.html":  `Hello {=$name|'stranger'}!`,
		"layout.html": `<main>{&(MAIN)}</main>`,
		"broken.html": `{@(items)}{/@}`,
	}
	for name, src := range files {
		require.NoError(t, os.WriteFile(filepath.Join(views, name), []byte(src), 0o644))
	}
	return views, cache
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	return exitErr.Code
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, io.Discard, nil))
	assert.Contains(t, out.String(), "Commands:")

	err := run(&out, io.Discard, []string{"bogus"})
	assert.Equal(t, 2, exitCode(t, err))
}

func TestRunRender(t *testing.T) {
	views, cache := setupViews(t)
	data := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(data, []byte(`{"name":"Ada"}`), 0o644))

	var out bytes.Buffer
	err := run(&out, io.Discard, []string{"render", "-views", views, "-cache", cache, "-data", data, "-layout", "layout", "index"})
	require.NoError(t, err)
	assert.Equal(t, "<main>Hello Ada!</main>", out.String())
}

func TestRunCompileCheckPurge(t *testing.T) {
	views, cache := setupViews(t)

	var out bytes.Buffer
	require.NoError(t, run(&out, io.Discard, []string{"compile", "-views", views, "-cache", cache, "-cache-ext", "msgpack", "index"}))
	fields := strings.Fields(out.String())
	require.Len(t, fields, 2)
	assert.True(t, strings.HasSuffix(fields[1], ".msgpack"))
	assert.FileExists(t, fields[1])

	out.Reset()
	err := run(&out, io.Discard, []string{"check", "-views", views, "-cache", cache, "index", "broken"})
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, out.String(), "ok\tindex")
	assert.Contains(t, out.String(), "FAIL\tbroken")

	out.Reset()
	require.NoError(t, run(&out, io.Discard, []string{"purge", "-views", views, "-cache", cache, "-cache-ext", "msgpack", "index"}))
	assert.NoFileExists(t, fields[1])
}

func TestRunCheckIgnoresCachedArtifact(t *testing.T) {
	views, cache := setupViews(t)

	var out bytes.Buffer
	require.NoError(t, run(&out, io.Discard, []string{"compile", "-views", views, "-cache", cache, "index"}))

	index := filepath.Join(views, "index.html")
	require.NoError(t, os.WriteFile(index, []byte(`{@(items)}{/@}`), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(index, old, old))

	out.Reset()
	err := run(&out, io.Discard, []string{"check", "-views", views, "-cache", cache, "-lifetime", "0", "index"})
	assert.Equal(t, 1, exitCode(t, err))
	assert.Contains(t, out.String(), "FAIL\tindex")
}

func TestRunFlagErrors(t *testing.T) {
	views, cache := setupViews(t)

	err := run(io.Discard, io.Discard, []string{"render", "-views", views, "-cache", cache})
	assert.Equal(t, 2, exitCode(t, err))

	err = run(io.Discard, io.Discard, []string{"render", "-log-level", "loud", "-views", views, "index"})
	assert.Equal(t, 2, exitCode(t, err))

	err = run(io.Discard, io.Discard, []string{"render", "-views", views, "-cache", cache, "missing"})
	assert.Equal(t, 1, exitCode(t, err))
}

func TestRouter(t *testing.T) {
	views, cache := setupViews(t)
	reg := prometheus.NewRegistry()
	e, err := springview.New(views, cache, springview.WithRegisterer(reg))
	require.NoError(t, err)
	h := newRouter(e, reg, slog.New(slog.DiscardHandler))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "Hello stranger!", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/nothere", nil))
	assert.Equal(t, 404, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "springview_renders_total")
}
