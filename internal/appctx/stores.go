package appctx

import (
	"fmt"
	"time"

	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/loop"
	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/settings"
)

// StoresOption configures NewStores.
type StoresOption func(*storesConfig)

type storesConfig struct {
	clock    clock.Clock
	interval time.Duration
}

// WithClock sets the clock behind CurrentDate. Defaults to clock.Real.
func WithClock(c clock.Clock) StoresOption {
	return func(cfg *storesConfig) {
		cfg.clock = c
	}
}

// WithTickInterval sets the CurrentDate period.
// Defaults to observable.DefaultTickInterval.
func WithTickInterval(d time.Duration) StoresOption {
	return func(cfg *storesConfig) {
		cfg.interval = d
	}
}

// Stores holds the bundle passthroughs and the derivations built on them.
//
// Every observable here is created once per Stores and shared by all
// consumers, so stateful derivations keep a single memory.
type Stores struct {
	bundle *Bundle

	currentDate       observable.Readable[time.Time]
	resolvedRepo      *observable.Writable[Repository]
	repoHasNewCommits observable.Readable[bool]
}

// NewStores validates b and builds the derived sources. Ticks of the
// current-date source are delivered through d. A non-positive tick interval
// is rejected.
func NewStores(b *Bundle, d loop.Dispatcher, opts ...StoresOption) (*Stores, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	cfg := storesConfig{
		clock:    clock.Real{},
		interval: observable.DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", cfg.interval)
	}

	repo := observable.NewWritable[Repository]()

	return &Stores{
		bundle: b,
		currentDate: observable.Ticker(cfg.clock, cfg.interval, d,
			observable.WithInitial(cfg.clock.Now())),
		resolvedRepo: repo,
		repoHasNewCommits: observable.DeriveStateful(
			observable.Readonly(repo),
			observable.CompareWithPrevious(commitNotOlder, false),
			observable.WithInitial(false),
		),
	}, nil
}

// FromProvider looks up the bundle under key and builds Stores from it.
func FromProvider(p *Provider, key string, d loop.Dispatcher, opts ...StoresOption) (*Stores, error) {
	b, err := p.Lookup(key)
	if err != nil {
		return nil, err
	}
	return NewStores(b, d, opts...)
}

// Settings returns the bundle's settings source.
func (s *Stores) Settings() observable.Readable[settings.Settings] {
	return s.bundle.Settings
}

// User returns the bundle's user source.
func (s *Stores) User() observable.Readable[*User] {
	return s.bundle.User
}

// Platform returns the bundle's platform source.
func (s *Stores) Platform() observable.Readable[*Platform] {
	return s.bundle.Platform
}

// IsLightTheme returns the bundle's theme source.
func (s *Stores) IsLightTheme() observable.Readable[bool] {
	return s.bundle.IsLightTheme
}

// CurrentDate publishes the time once per tick interval while subscribed.
func (s *Stores) CurrentDate() observable.Readable[time.Time] {
	return s.currentDate
}

// ResolvedRepo is set by whoever resolves the current repository.
// It holds no value until the first Set.
func (s *Stores) ResolvedRepo() *observable.Writable[Repository] {
	return s.resolvedRepo
}

// RepoHasNewCommits reports, for each resolved repository after the first,
// whether its tip commit is at least as recent as the previous one.
// It starts out false.
func (s *Stores) RepoHasNewCommits() observable.Readable[bool] {
	return s.repoHasNewCommits
}

// commitNotOlder compares author dates. A repository without a commit date
// counts as no change.
func commitNotOlder(prev, curr Repository) bool {
	p, c := prev.Commit.Author.Date, curr.Commit.Author.Date
	if p.IsZero() || c.IsZero() {
		return false
	}
	return !p.After(c)
}
