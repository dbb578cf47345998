package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/derive/internal/appctx"
	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/harness"
	"github.com/roach88/derive/internal/loop"
	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/recorder"
	"github.com/roach88/derive/internal/settings"
	"github.com/roach88/derive/internal/store"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval      time.Duration
	Count         int
	SettingsFiles []string
	Schema        string
	Database      string
	LightTheme    bool

	// Clock allows overriding the time source (for testing).
	// If nil, defaults to clock.Real.
	Clock clock.Clock
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print live emissions of the current date and settings",
		Long: `Start the event loop on the real clock and print every value published by
the currentDate and settings sources.

Settings files are watched; saving one re-evaluates the cascade and
publishes the new settings. Press Ctrl-C to stop.

Examples:
  derive watch
  derive watch --interval 500ms --count 5
  derive watch --settings global.cue --settings user.cue --db ./derive.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", observable.DefaultTickInterval, "currentDate tick interval")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "stop after this many currentDate emissions (0 = until interrupted)")
	cmd.Flags().StringArrayVar(&opts.SettingsFiles, "settings", nil, "CUE settings file (repeatable, later files win)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema the merged settings must satisfy")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record emissions in")
	cmd.Flags().BoolVar(&opts.LightTheme, "light", false, "publish a light theme")

	return cmd
}

func runWatch(parent context.Context, opts *WatchOptions, cmd *cobra.Command) error {
	if opts.Interval <= 0 {
		return NewExitError(ExitCommandError, "interval must be positive")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var settingsOpts []settings.Option
	if opts.Schema != "" {
		settingsOpts = append(settingsOpts, settings.WithSchema(opts.Schema))
	}
	src, err := settings.NewSource(opts.SettingsFiles, settingsOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	lp := loop.New()

	bundle := &appctx.Bundle{
		Settings:     src.Readable(),
		User:         observable.Readonly(observable.NewWritableOf[*appctx.User](nil)),
		Platform:     observable.Readonly(observable.NewWritableOf(&appctx.Platform{ClientApplication: "derive-cli"})),
		IsLightTheme: observable.Readonly(observable.NewWritableOf(opts.LightTheme)),
	}
	stores, err := appctx.NewStores(bundle, lp,
		appctx.WithClock(clk),
		appctx.WithTickInterval(opts.Interval),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build stores", err)
	}

	recOpts := []recorder.Option{recorder.WithLabel("watch")}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		last, err := st.MaxSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read database", err)
		}
		recOpts = append(recOpts, recorder.WithSink(st), recorder.WithSeq(clock.NewSeqAt(last)))
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	ticks := 0
	recOpts = append(recOpts, recorder.WithObserver(func(ev recorder.Event) {
		// Ticks already queued when the count was reached still drain.
		if ctx.Err() != nil {
			return
		}
		if err := out.Emission(ev, ev.Seq, ev.Source, ev.Value); err != nil {
			slog.Error("failed to write emission", "error", err)
		}
		if ev.Source != harness.SourceCurrentDate {
			return
		}
		ticks++
		if opts.Count > 0 && ticks >= opts.Count {
			cancel()
		}
	}))

	// Emissions still queued at shutdown are persisted after ctx is cancelled.
	rec, err := recorder.New(context.WithoutCancel(ctx), recOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start recording", err)
	}

	lp.Dispatch(func() {
		recorder.Track(rec, appctx.SourceSettings, stores.Settings())
		recorder.Track(rec, harness.SourceCurrentDate, stores.CurrentDate())
	})

	if len(opts.SettingsFiles) > 0 {
		if err := src.Watch(ctx, lp); err != nil {
			return WrapExitError(ExitCommandError, "failed to watch settings", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	slog.Info("watch starting", "interval", opts.Interval, "run_id", rec.RunID())

	runErr := lp.Run(ctx)

	// Run has returned, so this goroutine owns the observables again.
	if err := rec.Close(); err != nil {
		return WrapExitError(ExitFailure, "recording failed", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "event loop error", runErr)
	}

	slog.Info("watch stopped", "emissions", len(rec.Events()))
	return nil
}
