package testutil

import (
	"testing"
	"time"
)

// ChanDispatcher queues dispatched tasks so the test goroutine can run them.
//
// It stands in for a running loop.Loop when a producer on another goroutine
// (a file watcher, a real-clock ticker) must hand work back to the test.
//
// Thread-safety: Dispatch is safe from any goroutine. RunNext must be called
// from the test goroutine.
type ChanDispatcher struct {
	tasks chan func()
}

// NewChanDispatcher creates a dispatcher buffering up to size tasks.
func NewChanDispatcher(size int) *ChanDispatcher {
	return &ChanDispatcher{tasks: make(chan func(), size)}
}

// Dispatch queues fn. It blocks when the buffer is full.
func (d *ChanDispatcher) Dispatch(fn func()) bool {
	d.tasks <- fn
	return true
}

// RunNext waits up to timeout for a task and runs it on the calling
// goroutine. It fails the test if no task arrives in time.
func (d *ChanDispatcher) RunNext(t testing.TB, timeout time.Duration) {
	t.Helper()
	select {
	case fn := <-d.tasks:
		fn()
	case <-time.After(timeout):
		t.Fatalf("no task dispatched within %s", timeout)
	}
}

// Pending returns the number of queued tasks.
func (d *ChanDispatcher) Pending() int {
	return len(d.tasks)
}
