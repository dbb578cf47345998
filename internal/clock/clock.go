// Package clock provides the time sources used by polling observables.
//
// Clock abstracts wall time so that time-based sources can run against the
// real clock in production and a manually advanced Fake in tests. Seq is the
// logical clock that orders recorded emissions.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of wall time and periodic callbacks.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Every calls fn with the tick time once per interval until the returned
	// stop function is called. Implementations decide which goroutine runs fn;
	// callers that need a specific goroutine must hand off themselves.
	Every(interval time.Duration, fn func(time.Time)) (stop func())
}

// Real is the Clock backed by the time package.
// fn passed to Every runs on a dedicated goroutine per registration.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Every starts a time.Ticker and calls fn from its own goroutine.
// The returned stop function is idempotent and waits for the goroutine to exit,
// so fn is never called after stop returns.
func (Real) Every(interval time.Duration, fn func(time.Time)) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case <-done:
				return
			case t := <-ticker.C:
				fn(t)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
			<-exited
		})
	}
}
