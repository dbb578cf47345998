package settings

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/roach88/derive/internal/loop"
	"github.com/roach88/derive/internal/observable"
)

// reloadDelay debounces bursts of file events (editors often write twice).
const reloadDelay = 200 * time.Millisecond

// Source publishes a settings cascade as an observable.
//
// The cell is seeded by NewSource. Reload and Watch re-evaluate the cascade;
// a failed evaluation is reported and leaves the published value unchanged,
// so consumers never see a half-loaded cascade.
type Source struct {
	paths []string
	opts  []Option
	cell  *observable.Writable[Settings]
}

// NewSource loads the cascade and returns a Source holding the result.
func NewSource(paths []string, opts ...Option) (*Source, error) {
	initial, err := Load(paths, opts...)
	if err != nil {
		return nil, err
	}
	return &Source{
		paths: append([]string(nil), paths...),
		opts:  opts,
		cell:  observable.NewWritableOf(initial),
	}, nil
}

// Readable returns the consumer view of the settings.
func (s *Source) Readable() observable.Readable[Settings] {
	return observable.Readonly(s.cell)
}

// Current returns the most recently published settings.
func (s *Source) Current() Settings {
	v, _ := s.cell.Value()
	return v
}

// Reload re-evaluates the cascade and publishes the result.
// Must be called on the goroutine that owns observable state.
func (s *Source) Reload() error {
	next, err := Load(s.paths, s.opts...)
	if err != nil {
		return err
	}
	s.cell.Set(next)
	return nil
}

// Watch reloads the cascade whenever one of its files changes, until ctx is
// cancelled. Files are evaluated on the watcher goroutine and the result is
// published through d, so Set always runs on the owning goroutine.
//
// The directories containing the files are watched rather than the files
// themselves, so editors that replace files by renaming are handled.
func (s *Source) Watch(ctx context.Context, d loop.Dispatcher) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}

	watched := make(map[string]bool, len(s.paths))
	dirs := make(map[string]bool)
	for _, path := range s.paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			watcher.Close()
			return fmt.Errorf("resolve settings path %s: %w", path, err)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch settings directory %s: %w", dir, err)
		}
	}

	slog.Info("watching settings", "files", len(watched))

	trigger := make(chan struct{}, 1)
	go s.reloadLoop(ctx, trigger, d)
	go s.processEvents(ctx, watcher, watched, trigger)
	return nil
}

// requestReload asks the reload loop for one more evaluation. Requests made
// while one is already pending coalesce into it.
func requestReload(trigger chan<- struct{}) {
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// reloadLoop evaluates the cascade once per request, one evaluation at a
// time, so results reach d in the order the files were read.
func (s *Source) reloadLoop(ctx context.Context, trigger <-chan struct{}, d loop.Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
			s.reloadInto(ctx, d)
		}
	}
}

func (s *Source) processEvents(ctx context.Context, watcher *fsnotify.Watcher, watched map[string]bool, trigger chan<- struct{}) {
	defer watcher.Close()

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}

			slog.Debug("settings file changed", "file", event.Name, "op", event.Op.String())

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				requestReload(trigger)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("settings watcher error", "error", err)
		}
	}
}

// reloadInto evaluates the cascade off the owning goroutine and hands the
// result to d for publishing.
func (s *Source) reloadInto(ctx context.Context, d loop.Dispatcher) {
	if ctx.Err() != nil {
		return
	}

	next, err := Load(s.paths, s.opts...)
	if err != nil {
		slog.Error("settings reload failed", "error", err)
		return
	}

	if !d.Dispatch(func() { s.cell.Set(next) }) {
		slog.Debug("settings reload dropped: loop stopped")
		return
	}
	slog.Info("settings reloaded", "keys", len(next))
}
