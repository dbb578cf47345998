package observable

// Unsubscriber removes a subscription. Calling it more than once is a no-op.
type Unsubscriber func()

// Readable is the consumer-facing side of an observable value.
//
// Subscribe registers fn and, if the observable currently holds a value,
// calls fn with it before returning (replay). fn is then called with every
// later emission until the returned Unsubscriber runs.
type Readable[T any] interface {
	Subscribe(fn func(T)) Unsubscriber
}

// StartFunc is run when an observable gains its first subscriber. It may
// call set (synchronously or later) to publish values and returns the stop
// function run when the last subscriber leaves. A nil stop is allowed.
type StartFunc[T any] func(set func(T)) (stop func())

type subscriber[T any] struct {
	fn     func(T)
	active bool
}

// Writable is an observable cell owned by a producer.
//
// It holds at most one current value, which may be absent until the first
// Set. Subscribers are notified synchronously, in subscription order, from
// inside Set.
//
// Writable is NOT thread-safe. All calls must happen on the goroutine that
// owns observable state (see package loop). Hand off from other goroutines
// with a loop.Dispatcher.
type Writable[T any] struct {
	value T
	has   bool

	subs []*subscriber[T]

	start    StartFunc[T]
	stop     func()
	running  bool   // start ran and stop has not
	starting bool   // inside start: Set records without notifying
	gen      uint64 // bumped by every Set
}

// NewWritable creates a cell with no current value.
func NewWritable[T any]() *Writable[T] {
	return &Writable[T]{}
}

// NewWritableOf creates a cell holding v.
func NewWritableOf[T any](v T) *Writable[T] {
	return &Writable[T]{value: v, has: true}
}

// NewReadable creates a read-only observable with no initial value whose
// start function runs on the first subscribe and whose stop function runs
// when the last subscriber leaves.
func NewReadable[T any](start StartFunc[T]) Readable[T] {
	return Readonly(&Writable[T]{start: start})
}

// NewReadableOf is NewReadable with an initial value.
func NewReadableOf[T any](v T, start StartFunc[T]) Readable[T] {
	return Readonly(&Writable[T]{value: v, has: true, start: start})
}

// Set stores v and notifies every current subscriber with it, in
// subscription order.
//
// A panic raised by a subscriber (including a derivation's combining
// function further down the chain) is not recovered: it propagates to the
// caller, and subscribers after the failing one miss this emission. The value
// is stored before notification begins, so late subscribers still replay it.
//
// If a subscriber calls Set on the same cell, the nested pass delivers the
// newer value to everyone and the outer pass stops, so no subscriber sees
// values out of order.
func (w *Writable[T]) Set(v T) {
	w.value, w.has = v, true
	w.gen++

	if w.starting || len(w.subs) == 0 {
		return
	}

	gen := w.gen
	subs := make([]*subscriber[T], len(w.subs))
	copy(subs, w.subs)

	for _, s := range subs {
		if w.gen != gen {
			return
		}
		if s.active {
			s.fn(v)
		}
	}
}

// TrySet is Set with panics converted to an error.
//
// The notification pass is still fail-fast: subscribers after the failing
// one are not notified and already notified subscribers are not rolled back.
// The returned error is an *EngineError with code COMBINATOR_FAILED.
func (w *Writable[T]) TrySet(v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewCombinatorError(r)
		}
	}()
	w.Set(v)
	return nil
}

// Update sets the cell to fn applied to the current value (the zero value
// when the cell is empty).
func (w *Writable[T]) Update(fn func(T) T) {
	w.Set(fn(w.value))
}

// Subscribe registers fn. See Readable.
//
// If fn panics during the replay, the panic propagates and fn stays
// unregistered.
func (w *Writable[T]) Subscribe(fn func(T)) Unsubscriber {
	s := &subscriber[T]{fn: fn, active: true}
	w.subs = append(w.subs, s)

	// A panic in start or in the replay leaves the caller without an
	// Unsubscriber, so the subscription is undone here; if it was the
	// last one the cell stops.
	ok := false
	defer func() {
		if !ok {
			w.unsubscribe(s)
		}
	}()

	if !w.running && w.start != nil {
		w.begin(s)
	}

	if s.active && w.has {
		fn(w.value)
	}

	ok = true
	return func() { w.unsubscribe(s) }
}

// Value returns the current value and whether one is present. It does not
// start the cell, so a cold derivation may report a stale value; use Get for
// a fresh read.
func (w *Writable[T]) Value() (T, bool) {
	return w.value, w.has
}

// SubscriberCount returns the number of active subscribers.
func (w *Writable[T]) SubscriberCount() int {
	return len(w.subs)
}

// Running reports whether the start function is currently active.
func (w *Writable[T]) Running() bool {
	return w.running
}

// begin runs the start function for the 0→1 transition. If start panics the
// new subscriber is dropped and the cell stays stopped.
func (w *Writable[T]) begin(s *subscriber[T]) {
	w.running, w.starting = true, true
	ok := false
	defer func() {
		w.starting = false
		if !ok {
			w.running = false
			s.active = false
			w.remove(s)
		}
	}()

	w.stop = w.start(w.Set)
	ok = true
}

func (w *Writable[T]) unsubscribe(s *subscriber[T]) {
	if !s.active {
		return
	}
	s.active = false
	w.remove(s)

	if len(w.subs) == 0 && w.running && !w.starting {
		w.running = false
		stop := w.stop
		w.stop = nil
		if stop != nil {
			stop()
		}
	}
}

func (w *Writable[T]) remove(s *subscriber[T]) {
	for i, other := range w.subs {
		if other == s {
			w.subs = append(w.subs[:i], w.subs[i+1:]...)
			return
		}
	}
}

type readonly[T any] struct {
	w *Writable[T]
}

func (r readonly[T]) Subscribe(fn func(T)) Unsubscriber {
	return r.w.Subscribe(fn)
}

// Readonly exposes only the Subscribe side of w, for handing a producer's
// cell to consumers that must not call Set.
func Readonly[T any](w *Writable[T]) Readable[T] {
	return readonly[T]{w: w}
}

// Get reads the current value of r by subscribing and immediately
// unsubscribing. On a lazily started source this runs one full start/stop
// cycle. ok is false when r holds no value.
func Get[T any](r Readable[T]) (v T, ok bool) {
	unsubscribe := r.Subscribe(func(x T) {
		v, ok = x, true
	})
	unsubscribe()
	return v, ok
}
