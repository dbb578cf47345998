package appctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/derive/internal/loop"
	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/settings"
	"github.com/roach88/derive/internal/testutil"
)

type testSources struct {
	settings *observable.Writable[settings.Settings]
	user     *observable.Writable[*User]
	platform *observable.Writable[*Platform]
	theme    *observable.Writable[bool]
}

func newTestBundle() (*Bundle, testSources) {
	src := testSources{
		settings: observable.NewWritableOf(settings.Settings{"theme": "dark"}),
		user:     observable.NewWritableOf[*User](nil),
		platform: observable.NewWritableOf(&Platform{ClientApplication: "web"}),
		theme:    observable.NewWritableOf(false),
	}
	return &Bundle{
		Settings:     observable.Readonly(src.settings),
		User:         observable.Readonly(src.user),
		Platform:     observable.Readonly(src.platform),
		IsLightTheme: observable.Readonly(src.theme),
	}, src
}

func repoAt(date time.Time) Repository {
	return Repository{
		Name:   "github.com/example/repo",
		Commit: Commit{OID: date.Format("150405"), Author: Signature{Name: "dev", Date: date}},
	}
}

func TestBundle_Validate(t *testing.T) {
	var nilBundle *Bundle
	err := nilBundle.Validate()
	require.Error(t, err)
	assert.True(t, observable.IsMissingSource(err))

	b, _ := newTestBundle()
	require.NoError(t, b.Validate())

	b.Platform = nil
	err = b.Validate()
	require.Error(t, err)
	assert.True(t, observable.IsMissingSource(err))
	assert.Contains(t, err.Error(), "source=platformContext")
}

func TestBundle_Source(t *testing.T) {
	b, _ := newTestBundle()

	for _, name := range SourceNames() {
		got, err := b.Source(name)
		require.NoError(t, err, name)
		assert.NotNil(t, got, name)
	}

	theme, err := b.Source(SourceIsLightTheme)
	require.NoError(t, err)
	light, ok := observable.Get(theme.(observable.Readable[bool]))
	require.True(t, ok)
	assert.False(t, light)

	_, err = b.Source("featureFlags")
	require.Error(t, err)
	assert.True(t, observable.IsMissingSource(err))
}

func TestProvider_LookupBeforeProvide(t *testing.T) {
	p := NewProvider()

	_, err := p.Lookup(DefaultKey)
	require.Error(t, err)
	assert.True(t, observable.IsMissingSource(err))

	var ee *observable.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, DefaultKey, ee.Source)
}

func TestProvider_ProvideAndLookup(t *testing.T) {
	p := NewProvider()
	b, _ := newTestBundle()

	require.NoError(t, p.Provide(DefaultKey, b))

	got, err := p.Lookup(DefaultKey)
	require.NoError(t, err)
	assert.Same(t, b, got)

	require.Error(t, p.Provide("incomplete", &Bundle{}))
	_, err = p.Lookup("incomplete")
	assert.True(t, observable.IsMissingSource(err))
}

func TestNewStores_RejectsIncompleteBundle(t *testing.T) {
	_, err := NewStores(nil, loop.Immediate{})
	assert.True(t, observable.IsMissingSource(err))

	_, err = NewStores(&Bundle{}, loop.Immediate{})
	assert.True(t, observable.IsMissingSource(err))
}

func TestNewStores_RejectsNonPositiveTickInterval(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		t.Run(d.String(), func(t *testing.T) {
			b, _ := newTestBundle()
			clk := testutil.NewFakeClock()

			stores, err := NewStores(b, loop.Immediate{}, WithClock(clk), WithTickInterval(d))
			require.Error(t, err)
			assert.Nil(t, stores)
			assert.Contains(t, err.Error(), "tick interval must be positive")
			assert.Equal(t, 0, clk.TickerCount())
		})
	}
}

func TestFromProvider(t *testing.T) {
	p := NewProvider()

	_, err := FromProvider(p, DefaultKey, loop.Immediate{})
	assert.True(t, observable.IsMissingSource(err))

	b, _ := newTestBundle()
	require.NoError(t, p.Provide(DefaultKey, b))

	stores, err := FromProvider(p, DefaultKey, loop.Immediate{})
	require.NoError(t, err)
	assert.NotNil(t, stores.User())
}

func TestStores_Passthrough(t *testing.T) {
	b, src := newTestBundle()
	stores, err := NewStores(b, loop.Immediate{})
	require.NoError(t, err)

	var users []*User
	unsub := stores.User().Subscribe(func(u *User) { users = append(users, u) })
	defer unsub()

	alice := &User{ID: "1", Username: "alice"}
	src.user.Set(alice)
	src.user.Set(nil)

	assert.Equal(t, []*User{nil, alice, nil}, users)

	theme, ok := observable.Get(stores.IsLightTheme())
	require.True(t, ok)
	assert.False(t, theme)

	cfg, ok := observable.Get(stores.Settings())
	require.True(t, ok)
	assert.Equal(t, "dark", cfg.Get("theme"))

	platform, ok := observable.Get(stores.Platform())
	require.True(t, ok)
	assert.Equal(t, "web", platform.ClientApplication)
}

func TestStores_RepoHasNewCommits(t *testing.T) {
	b, _ := newTestBundle()
	stores, err := NewStores(b, loop.Immediate{})
	require.NoError(t, err)

	var seen []bool
	unsub := stores.RepoHasNewCommits().Subscribe(func(v bool) { seen = append(seen, v) })
	defer unsub()

	stores.ResolvedRepo().Set(repoAt(testutil.Epoch))
	stores.ResolvedRepo().Set(repoAt(testutil.Epoch.Add(time.Hour)))

	assert.Equal(t, []bool{false, false, true}, seen)
}

func TestStores_RepoHasNewCommits_Comparison(t *testing.T) {
	tests := []struct {
		name string
		prev time.Time
		curr time.Time
		want bool
	}{
		{name: "newer", prev: testutil.Epoch, curr: testutil.Epoch.Add(time.Minute), want: true},
		{name: "same", prev: testutil.Epoch, curr: testutil.Epoch, want: true},
		{name: "older", prev: testutil.Epoch.Add(time.Minute), curr: testutil.Epoch, want: false},
		{name: "previous date missing", prev: time.Time{}, curr: testutil.Epoch, want: false},
		{name: "current date missing", prev: testutil.Epoch, curr: time.Time{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBundle()
			stores, err := NewStores(b, loop.Immediate{})
			require.NoError(t, err)

			var last bool
			unsub := stores.RepoHasNewCommits().Subscribe(func(v bool) { last = v })
			defer unsub()

			stores.ResolvedRepo().Set(repoAt(tt.prev))
			stores.ResolvedRepo().Set(repoAt(tt.curr))

			assert.Equal(t, tt.want, last)
		})
	}
}

func TestStores_ResolvedRepoStartsEmpty(t *testing.T) {
	b, _ := newTestBundle()
	stores, err := NewStores(b, loop.Immediate{})
	require.NoError(t, err)

	_, ok := observable.Get[Repository](stores.ResolvedRepo())
	assert.False(t, ok)

	hasNew, ok := observable.Get(stores.RepoHasNewCommits())
	require.True(t, ok)
	assert.False(t, hasNew)
}

func TestStores_CurrentDate(t *testing.T) {
	clk := testutil.NewFakeClock()
	b, _ := newTestBundle()
	stores, err := NewStores(b, loop.Immediate{}, WithClock(clk), WithTickInterval(time.Second))
	require.NoError(t, err)

	var seen []time.Time
	unsub := stores.CurrentDate().Subscribe(func(t time.Time) { seen = append(seen, t) })

	require.Len(t, seen, 1, "seeded with the construction time")
	assert.Equal(t, testutil.Epoch, seen[0])
	assert.Equal(t, 1, clk.TickerCount())

	clk.Advance(3 * time.Second)
	require.Len(t, seen, 4)
	assert.Equal(t, testutil.Ticks(time.Second, 3), seen[1:])

	unsub()
	assert.Equal(t, 0, clk.TickerCount())

	clk.Advance(5 * time.Second)
	assert.Len(t, seen, 4)
}

func TestStores_CurrentDateShared(t *testing.T) {
	clk := testutil.NewFakeClock()
	b, _ := newTestBundle()
	stores, err := NewStores(b, loop.Immediate{}, WithClock(clk))
	require.NoError(t, err)

	unsubA := stores.CurrentDate().Subscribe(func(time.Time) {})
	unsubB := stores.CurrentDate().Subscribe(func(time.Time) {})
	assert.Equal(t, 1, clk.TickerCount())

	unsubA()
	assert.Equal(t, 1, clk.TickerCount())
	unsubB()
	assert.Equal(t, 0, clk.TickerCount())
}
