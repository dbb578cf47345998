package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/derive/internal/appctx"
	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/loop"
	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/recorder"
	"github.com/roach88/derive/internal/settings"
)

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	sink   recorder.Sink
	seq    *clock.Seq
	logger *slog.Logger
}

// WithSink persists the recorded run, typically to a *store.Store.
func WithSink(s recorder.Sink) RunOption {
	return func(c *runConfig) {
		c.sink = s
	}
}

// WithSeq sets the logical clock used to stamp emissions.
func WithSeq(s *clock.Seq) RunOption {
	return func(c *runConfig) {
		c.seq = s
	}
}

// WithLogger sets the step logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = l
	}
}

// Harness executes one scenario.
//
// Everything runs on the calling goroutine: the simulated clock fires ticks
// synchronously from Advance and they are dispatched with loop.Immediate.
type Harness struct {
	clock    *clock.Fake
	stores   *appctx.Stores
	recorder *recorder.Recorder
	logger   *slog.Logger

	settings *observable.Writable[settings.Settings]
	user     *observable.Writable[*appctx.User]
	theme    *observable.Writable[bool]

	tracked map[string]observable.Unsubscriber
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build the bundle sources from the scenario's initial values
//  2. Build Stores on a simulated clock
//  3. Execute steps, recording every emission of subscribed sources
//  4. Evaluate assertions against the recorded trace
//
// Step failures (such as unsubscribing a source that is not subscribed) are
// reported in the result; only setup problems return an error.
func Run(scenario *Scenario, opts ...RunOption) (*Result, error) {
	cfg := runConfig{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h, err := newHarness(scenario, cfg)
	if err != nil {
		return nil, err
	}

	result := NewResult(h.recorder.RunID())

	for i, step := range scenario.Steps {
		if err := h.executeStep(step); err != nil {
			result.AddError(fmt.Sprintf("steps[%d]: %v", i, err))
		}
	}

	if err := h.recorder.Close(); err != nil {
		result.AddError(fmt.Sprintf("recording: %v", err))
	}

	for _, ev := range h.recorder.Events() {
		result.Trace = append(result.Trace, TraceEvent{Seq: ev.Seq, Source: ev.Source, Value: ev.Value})
	}

	actx := &AssertionContext{Clock: h.clock}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)

	return result, nil
}

func newHarness(scenario *Scenario, cfg runConfig) (*Harness, error) {
	start := defaultStart
	if scenario.Start != "" {
		t, err := time.Parse(time.RFC3339, scenario.Start)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		start = t
	}

	interval := observable.DefaultTickInterval
	if scenario.TickInterval != "" {
		d, err := time.ParseDuration(scenario.TickInterval)
		if err != nil {
			return nil, fmt.Errorf("tick_interval: %w", err)
		}
		interval = d
	}

	initial, err := initialSettings(scenario)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		clock:    clock.NewFake(start),
		logger:   cfg.logger,
		settings: observable.NewWritableOf(initial),
		user:     observable.NewWritableOf(scenario.User),
		theme:    observable.NewWritableOf(scenario.LightTheme),
		tracked:  make(map[string]observable.Unsubscriber),
	}

	bundle := &appctx.Bundle{
		Settings:     observable.Readonly(h.settings),
		User:         observable.Readonly(h.user),
		Platform:     observable.Readonly(observable.NewWritableOf(&appctx.Platform{ClientApplication: "derive-harness"})),
		IsLightTheme: observable.Readonly(h.theme),
	}

	h.stores, err = appctx.NewStores(bundle, loop.Immediate{},
		appctx.WithClock(h.clock),
		appctx.WithTickInterval(interval),
	)
	if err != nil {
		return nil, fmt.Errorf("build stores: %w", err)
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	recOpts := []recorder.Option{
		recorder.WithRunIDGenerator(recorder.NewFixedGenerator(runID)),
		recorder.WithLabel(scenario.Name),
	}
	if cfg.sink != nil {
		recOpts = append(recOpts, recorder.WithSink(cfg.sink))
	}
	if cfg.seq != nil {
		recOpts = append(recOpts, recorder.WithSeq(cfg.seq))
	}

	h.recorder, err = recorder.New(context.Background(), recOpts...)
	if err != nil {
		return nil, fmt.Errorf("start recording: %w", err)
	}

	return h, nil
}

// initialSettings evaluates the scenario's settings cascade and overlays the
// inline settings.
func initialSettings(scenario *Scenario) (settings.Settings, error) {
	base, err := settings.Load(scenario.SettingsFiles)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for k, v := range scenario.Settings {
		base[k] = v
	}
	return base, nil
}

// executeStep runs a single step.
func (h *Harness) executeStep(step Step) error {
	kind, err := step.kind()
	if err != nil {
		return err
	}

	h.logger.Debug("executing step", "kind", kind)

	switch kind {
	case "subscribe":
		return h.subscribe(step.Subscribe)

	case "unsubscribe":
		unsub, ok := h.tracked[step.Unsubscribe]
		if !ok {
			return fmt.Errorf("unsubscribe %s: not subscribed", step.Unsubscribe)
		}
		unsub()
		delete(h.tracked, step.Unsubscribe)

	case "set_repo":
		repo, err := step.SetRepo.repository()
		if err != nil {
			return err
		}
		h.stores.ResolvedRepo().Set(repo)

	case "set_theme":
		h.theme.Set(*step.SetTheme)

	case "set_user":
		u := *step.SetUser
		h.user.Set(&u)

	case "sign_out":
		h.user.Set(nil)

	case "set_settings":
		h.settings.Set(settings.Settings(step.SetSettings))

	case "advance":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		h.clock.Advance(d)
	}

	return nil
}

// subscribe starts recording the named source.
func (h *Harness) subscribe(name string) error {
	if _, ok := h.tracked[name]; ok {
		return fmt.Errorf("subscribe %s: already subscribed", name)
	}

	var unsub observable.Unsubscriber
	switch name {
	case appctx.SourceSettings:
		unsub = recorder.Track(h.recorder, name, h.stores.Settings())
	case appctx.SourceUser:
		unsub = recorder.Track(h.recorder, name, h.stores.User())
	case appctx.SourcePlatform:
		unsub = recorder.Track(h.recorder, name, h.stores.Platform())
	case appctx.SourceIsLightTheme:
		unsub = recorder.Track(h.recorder, name, h.stores.IsLightTheme())
	case SourceCurrentDate:
		unsub = recorder.Track(h.recorder, name, h.stores.CurrentDate())
	case SourceResolvedRepo:
		unsub = recorder.Track[appctx.Repository](h.recorder, name, h.stores.ResolvedRepo())
	case SourceRepoHasNewCommits:
		unsub = recorder.Track(h.recorder, name, h.stores.RepoHasNewCommits())
	default:
		return fmt.Errorf("subscribe %s: unknown source", name)
	}

	h.tracked[name] = unsub
	return nil
}

func (r *RepoStep) repository() (appctx.Repository, error) {
	repo := appctx.Repository{
		Name: r.Name,
		Commit: appctx.Commit{
			OID:    r.OID,
			Author: appctx.Signature{Name: r.Author},
		},
	}
	if r.Date != "" {
		date, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return appctx.Repository{}, fmt.Errorf("set_repo: date: %w", err)
		}
		repo.Commit.Author.Date = date
	}
	return repo, nil
}
