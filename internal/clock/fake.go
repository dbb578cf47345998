package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for deterministic tests.
//
// Periodic callbacks registered with Every fire synchronously from Advance,
// on the goroutine that calls Advance. Callbacks due at the same instant fire
// in registration order.
//
// Thread-safety: all methods are safe for concurrent use; callbacks run
// without the internal lock held, so they may call back into the Fake.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	tickers []*fakeTicker
}

type fakeTicker struct {
	id       int
	interval time.Duration
	next     time.Time
	stopped  bool
	fn       func(time.Time)
}

// NewFake creates a Fake positioned at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the simulated time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Every registers fn to fire every interval of simulated time.
// Panics if interval is not positive.
func (f *Fake) Every(interval time.Duration, fn func(time.Time)) func() {
	if interval <= 0 {
		panic("clock: non-positive interval")
	}

	f.mu.Lock()
	f.nextID++
	t := &fakeTicker{
		id:       f.nextID,
		interval: interval,
		next:     f.now.Add(interval),
		fn:       fn,
	}
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if t.stopped {
			return
		}
		t.stopped = true
		for i, other := range f.tickers {
			if other == t {
				f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
				break
			}
		}
	}
}

// Advance moves simulated time forward by d, firing every tick that falls
// due on the way. Time is stepped to each tick instant before its callback
// runs, so Now() inside a callback equals the tick time.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		t := f.earliestDue(target)
		if t == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		at := t.next
		f.now = at
		t.next = at.Add(t.interval)
		fn := t.fn
		f.mu.Unlock()

		fn(at)
	}
}

// TickerCount returns the number of registered, unstopped tickers.
func (f *Fake) TickerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// earliestDue returns the ticker with the earliest fire time not after
// target, breaking ties by registration order. Caller holds f.mu.
func (f *Fake) earliestDue(target time.Time) *fakeTicker {
	var best *fakeTicker
	for _, t := range f.tickers {
		if t.next.After(target) {
			continue
		}
		if best == nil || t.next.Before(best.next) || (t.next.Equal(best.next) && t.id < best.id) {
			best = t
		}
	}
	return best
}
