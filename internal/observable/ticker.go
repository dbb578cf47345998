package observable

import (
	"time"

	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/loop"
)

// DefaultTickInterval is the period of the current-time source.
const DefaultTickInterval = time.Second

// Ticker returns an observable that publishes clk.Now() once per interval.
//
// The timer is created when the first subscriber attaches and cancelled when
// the last one leaves. Ticks are handed to d so that the publishing Set runs
// on the goroutine owning observable state; a tick already queued when the
// ticker stops is discarded.
//
// Without WithInitial the ticker holds no value until its first tick.
func Ticker(clk clock.Clock, interval time.Duration, d loop.Dispatcher, opts ...Option[time.Time]) Readable[time.Time] {
	return Readonly(newCell(func(set func(time.Time)) func() {
		active := true
		cancel := clk.Every(interval, func(time.Time) {
			d.Dispatch(func() {
				if active {
					set(clk.Now())
				}
			})
		})
		return func() {
			active = false
			cancel()
		}
	}, opts))
}
