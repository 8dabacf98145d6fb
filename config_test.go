package springview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "springview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
view_path: /srv/views
cache_ext: msgpack
cache_lifetime: 60
layout: layout
vars:
  site: Example
`), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SPRINGVIEW_CACHE_PATH=/tmp/artifacts\nSPRINGVIEW_CACHE_LIFETIME=30\n"), 0o644))
	t.Setenv("SPRINGVIEW_CACHE_LIFETIME", "0")

	cfg, err := LoadConfig(path, envFile)
	require.NoError(t, err)
	assert.Equal(t, "/srv/views", cfg.ViewPath)
	assert.Equal(t, "/tmp/artifacts", cfg.CachePath)
	assert.Equal(t, "msgpack", cfg.CacheExt)
	assert.Equal(t, DefaultViewExt, cfg.ViewExt)
	assert.Equal(t, 0, cfg.CacheLifetime, "process environment wins over env files")
	assert.Equal(t, "layout", cfg.Layout)
	assert.Equal(t, DefaultMainFlag, cfg.LayoutFlag)
	assert.Equal(t, "Example", cfg.Vars["site"])
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("SPRINGVIEW_CACHE_LIFETIME", "soon")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	t.Setenv("SPRINGVIEW_CACHE_LIFETIME", "-1")
	_, err = LoadConfig("")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewFromConfig(t *testing.T) {
	viewDir, cacheDir := t.TempDir(), t.TempDir()
	writeView(t, viewDir, "layout", `<{=$site}>{&(body)}`)
	writeView(t, viewDir, "page", `p`)

	cfg := DefaultConfig()
	cfg.ViewPath = viewDir
	cfg.CachePath = cacheDir
	cfg.Layout = "layout"
	cfg.LayoutFlag = "body"
	cfg.Vars = map[string]any{"site": "S"}

	e, err := NewFromConfig(cfg)
	require.NoError(t, err)
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "<S>p", out)

	cfg.Layout = "missing"
	_, err = NewFromConfig(cfg)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
