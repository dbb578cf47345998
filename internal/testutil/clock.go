package testutil

import (
	"time"

	"github.com/roach88/derive/internal/clock"
)

// Epoch is the simulated start time shared by tests and scenarios.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewFakeClock creates a fake clock positioned at Epoch.
//
// Tickers registered on it only fire when the test calls Advance, so every
// run of a test sees the same tick times.
func NewFakeClock() *clock.Fake {
	return clock.NewFake(Epoch)
}

// Ticks returns the n instants a ticker started at Epoch fires at when
// advanced by interval n times.
func Ticks(interval time.Duration, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = Epoch.Add(time.Duration(i+1) * interval)
	}
	return out
}
