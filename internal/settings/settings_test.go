package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/derive/internal/testutil"
)

func TestLoad_EmptyCascade(t *testing.T) {
	got, err := Load(nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	global := testutil.WriteFile(t, dir, "global.cue", `
theme: "dark"
search: {
	defaultMode: "standard"
	limit:       100
}
`)
	user := testutil.WriteFile(t, dir, "user.cue", `
search: limit: 500
experimental: true
`)

	got, err := Load([]string{global, user})
	require.NoError(t, err)

	assert.Equal(t, "dark", got.Get("theme"))
	assert.Equal(t, true, got.Get("experimental"))

	search, ok := got.Get("search").(map[string]any)
	require.True(t, ok, "nested objects decode as maps")
	assert.Equal(t, "standard", search["defaultMode"])
	assert.EqualValues(t, 500, search["limit"])
}

func TestLoad_CUEReferencesResolvePerFile(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "org.cue", `
base:    "https://example.com"
apiURL:  base + "/api"
retries: *3 | int
`)

	got, err := Load([]string{path})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api", got.Get("apiURL"))
	assert.EqualValues(t, 3, got.Get("retries"))
}

func TestMergeMaps_InputsNotMutated(t *testing.T) {
	base := map[string]any{"a": map[string]any{"x": 1}}
	layer := map[string]any{"a": map[string]any{"y": 2}}

	merged := mergeMaps(base, layer)

	assert.Equal(t, map[string]any{"x": 1, "y": 2}, merged["a"])
	assert.Equal(t, map[string]any{"x": 1}, base["a"])
}

func TestLoad_ConflictIsLoadError(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "bad.cue", `
theme: "dark"
theme: "light"
`)

	_, err := Load([]string{path})
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)
	assert.Contains(t, err.Error(), "bad.cue")
}

func TestLoad_IncompleteValueRejected(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "open.cue", `limit: int`)

	_, err := Load([]string{path})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load([]string{filepath.Join(t.TempDir(), "nope.cue")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoad_Schema(t *testing.T) {
	dir := t.TempDir()
	schema := testutil.WriteFile(t, dir, "schema.cue", `
theme?: "dark" | "light"
limit?: int & >0
`)

	t.Run("accepts conforming settings", func(t *testing.T) {
		path := testutil.WriteFile(t, dir, "ok.cue", `theme: "light"`)
		got, err := Load([]string{path}, WithSchema(schema))
		require.NoError(t, err)
		assert.Equal(t, "light", got.Get("theme"))
	})

	t.Run("rejects violations of the merged value", func(t *testing.T) {
		first := testutil.WriteFile(t, dir, "first.cue", `limit: 10`)
		second := testutil.WriteFile(t, dir, "second.cue", `limit: -1`)

		_, err := Load([]string{first, second}, WithSchema(schema))
		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, schema, loadErr.Path)
	})
}

func TestSettings_GetOnNil(t *testing.T) {
	var s Settings
	assert.Nil(t, s.Get("anything"))
}

func TestSource_ReloadPublishes(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "user.cue", `theme: "dark"`)

	src, err := NewSource([]string{path})
	require.NoError(t, err)

	var seen []any
	unsub := src.Readable().Subscribe(func(s Settings) {
		seen = append(seen, s.Get("theme"))
	})
	defer unsub()

	testutil.WriteFile(t, dir, "user.cue", `theme: "light"`)
	require.NoError(t, src.Reload())

	assert.Equal(t, []any{"dark", "light"}, seen)
	assert.Equal(t, "light", src.Current().Get("theme"))
}

func TestSource_FailedReloadKeepsValue(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "user.cue", `theme: "dark"`)

	src, err := NewSource([]string{path})
	require.NoError(t, err)

	calls := 0
	unsub := src.Readable().Subscribe(func(Settings) { calls++ })
	defer unsub()

	testutil.WriteFile(t, dir, "user.cue", `theme: `)
	require.Error(t, src.Reload())

	assert.Equal(t, 1, calls, "only the replay")
	assert.Equal(t, "dark", src.Current().Get("theme"))
}

func TestNewSource_PropagatesLoadError(t *testing.T) {
	_, err := NewSource([]string{filepath.Join(t.TempDir(), "missing.cue")})
	require.Error(t, err)
}

func TestSource_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "user.cue", `theme: "dark"`)

	src, err := NewSource([]string{path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks := testutil.NewChanDispatcher(4)
	require.NoError(t, src.Watch(ctx, tasks))

	testutil.WriteFile(t, dir, "unrelated.cue", `ignored: true`)
	testutil.WriteFile(t, dir, "user.cue", `theme: "light"`)

	tasks.RunNext(t, 5*time.Second)

	assert.Equal(t, "light", src.Current().Get("theme"))
}

func TestRequestReload_Coalesces(t *testing.T) {
	trigger := make(chan struct{}, 1)
	requestReload(trigger)
	requestReload(trigger)
	requestReload(trigger)
	assert.Len(t, trigger, 1)
}

func TestSource_ReloadsPublishInFileOrder(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "user.cue", `rev: "0"`)

	src, err := NewSource([]string{path})
	require.NoError(t, err)

	var revs []string
	unsubscribe := src.Readable().Subscribe(func(s Settings) {
		revs = append(revs, s.Get("rev").(string))
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan struct{}, 1)
	tasks := testutil.NewChanDispatcher(16)
	go src.reloadLoop(ctx, trigger, tasks)

	for i := 1; i <= 5; i++ {
		// Replace by rename so a reload never reads a half-written file.
		tmp := testutil.WriteFile(t, dir, "user.cue.tmp", fmt.Sprintf("rev: %q", fmt.Sprint(i)))
		require.NoError(t, os.Rename(tmp, path))
		requestReload(trigger)
	}

	for revs[len(revs)-1] != "5" {
		tasks.RunNext(t, 5*time.Second)
	}

	assert.Equal(t, "0", revs[0])
	assert.IsNonDecreasing(t, revs, "a reload never publishes older settings over newer ones")
}
