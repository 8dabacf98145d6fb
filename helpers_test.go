package springview

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// testEngine writes views into a temporary view directory and returns an
// engine over it with its own temporary cache directory.
func testEngine(t testing.TB, views map[string]string, opts ...Option) *Engine {
	t.Helper()
	viewDir, cacheDir := t.TempDir(), t.TempDir()
	for name, src := range views {
		writeView(t, viewDir, name, src)
	}
	opts = append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	e, err := New(viewDir, cacheDir, opts...)
	require.NoError(t, err)
	return e
}

func writeView(t testing.TB, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name+"."+DefaultViewExt)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// renderSource compiles src as a one-off view and renders it.
func renderSource(t testing.TB, src string, vars map[string]any, opts ...Option) (string, error) {
	t.Helper()
	e := testEngine(t, map[string]string{"view": src}, opts...)
	return e.Render("view", vars)
}

// compileSource runs the passes over src without touching the disk.
func compileSource(t testing.TB, src string) ([]instr, error) {
	t.Helper()
	e := testEngine(t, nil)
	return newCompiler(e, e.exprs, "inline", nil).compile(src)
}
