package springview

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReloaderPurgesChangedViews(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "v1", "sub/other": "o"}, WithCacheLifetime(0))
	out, err := e.Render("page", nil)
	require.NoError(t, err)
	require.Equal(t, "v1", out)

	rl := e.NewReloader(time.Hour)
	require.NoError(t, rl.WatchDirectory())
	assert.ElementsMatch(t, []string{"page", "sub/other"}, rl.Watched())

	var reloaded []string
	rl.AddCallback(func(view string, err error) {
		assert.NoError(t, err)
		reloaded = append(reloaded, view)
	})

	rl.Check()
	assert.Empty(t, reloaded)

	path := writeView(t, e.ViewPath(), "page", "v2")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	rl.Check()
	assert.Equal(t, []string{"page"}, reloaded)

	out, err = e.Render("page", nil)
	require.NoError(t, err)
	assert.Equal(t, "v2", out)
}

func TestReloaderReportsCompileErrors(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "ok"})
	rl := e.NewReloader(0)
	require.NoError(t, rl.Watch("page"))
	assert.ErrorIs(t, rl.Watch("missing"), ErrTemplateNotFound)

	var got error
	rl.AddCallback(func(_ string, err error) { got = err })

	path := writeView(t, e.ViewPath(), "page", "{@(bad)}{/@}")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
	rl.Check()
	assert.ErrorIs(t, got, ErrInvalidLoopSource)
}

func TestReloaderStartStop(t *testing.T) {
	e := testEngine(t, map[string]string{"page": "ok"})
	rl := e.NewReloader(10 * time.Millisecond)
	rl.Start()
	rl.Stop()
	rl.Stop()
}
