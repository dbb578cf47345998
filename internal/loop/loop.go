// Package loop implements the single-goroutine event loop that owns all
// observable state.
//
// Observables carry no locks. Every Set, Subscribe and unsubscribe must run
// on one goroutine; Loop is that goroutine. Producers on other goroutines
// (real-clock tickers, signal handlers, file watchers) hand their updates to
// Dispatch, and Run executes them in FIFO order.
package loop

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher hands a task to the goroutine that owns observable state.
type Dispatcher interface {
	Dispatch(fn func()) bool
}

// Loop is a single-writer task loop.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Loop struct {
	queue *taskQueue
}

// New creates an idle loop. Call Run to start processing.
func New() *Loop {
	return &Loop{queue: newTaskQueue()}
}

// Dispatch enqueues fn for execution on the loop goroutine.
// Returns false if the loop has been stopped.
func (l *Loop) Dispatch(fn func()) bool {
	return l.queue.Enqueue(Task(fn))
}

// Run processes tasks until ctx is cancelled or Stop is called.
//
// A task that panics is logged with the recovered value and processing
// continues with the next task; the loop itself never dies on a task failure.
// Tasks still queued when Stop is called are drained before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	slog.Debug("loop starting")

	for {
		task, ok := l.queue.TryDequeue()
		if ok {
			if err := runTask(task); err != nil {
				slog.Error("loop task failed", "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately on every iteration.
			if l.queue.Len() == 0 && l.closed() {
				slog.Debug("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the loop. Run drains remaining tasks and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

func (l *Loop) closed() bool {
	l.queue.mu.Lock()
	defer l.queue.mu.Unlock()
	return l.queue.closed
}

// runTask executes a task, converting a panic into an error.
func runTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	task()
	return nil
}

// Immediate is a Dispatcher that runs tasks synchronously on the caller's
// goroutine. Use it when the producer already runs on the owning goroutine,
// such as a Fake clock advanced from a test.
type Immediate struct{}

// Dispatch runs fn immediately and reports true.
func (Immediate) Dispatch(fn func()) bool {
	fn()
	return true
}
