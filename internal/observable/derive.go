package observable

// Option configures a derived or polling observable.
type Option[T any] func(*options[T])

type options[T any] struct {
	initial    T
	hasInitial bool
}

// WithInitial sets the value a derivation holds before its first
// recompute. It is replayed to subscribers like any current value.
func WithInitial[T any](v T) Option[T] {
	return func(o *options[T]) {
		o.initial = v
		o.hasInitial = true
	}
}

// newCell builds the backing cell for a derived or polling observable.
func newCell[T any](start StartFunc[T], opts []Option[T]) *Writable[T] {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}
	return &Writable[T]{
		value: o.initial,
		has:   o.hasInitial,
		start: start,
	}
}

// Derive returns an observable whose value is combine applied to the latest
// value of src.
//
// The derivation is lazily connected: it subscribes to src only when it
// gains its first subscriber and unsubscribes when its last subscriber
// leaves, so start/stop of src propagates through it. While connected,
// combine runs exactly once per emission of src (the replay delivered when
// connecting counts as one) and the result is published before Derive's own
// subscribers are notified.
func Derive[S, R any](src Readable[S], combine func(S) R, opts ...Option[R]) Readable[R] {
	return Readonly(newCell(func(set func(R)) func() {
		return src.Subscribe(func(v S) {
			set(combine(v))
		})
	}, opts))
}

// DeriveStateful is Derive with a combinator that carries memory across
// emissions.
//
// factory runs exactly once, here, for this derivation instance. The
// returned Combinator is shared by every subscriber and every connection
// cycle, so its memory persists for the lifetime of the derivation.
func DeriveStateful[S, R any](src Readable[S], factory func() Combinator[S, R], opts ...Option[R]) Readable[R] {
	c := factory()
	return Readonly(newCell(func(set func(R)) func() {
		return src.Subscribe(func(v S) {
			set(c.Combine(v))
		})
	}, opts))
}

// Derive2 returns an observable computed from two sources.
//
// combine first runs once both sources hold a value, then once per emission
// of either source. Connecting to both sources yields a single initial
// compute rather than one per replay.
func Derive2[A, B, R any](a Readable[A], b Readable[B], combine func(A, B) R, opts ...Option[R]) Readable[R] {
	return Readonly(newCell(func(set func(R)) func() {
		var (
			va         A
			vb         B
			hasA, hasB bool
			connecting = true
		)

		recompute := func() {
			if connecting || !hasA || !hasB {
				return
			}
			set(combine(va, vb))
		}

		unsubA := a.Subscribe(func(v A) {
			va, hasA = v, true
			recompute()
		})
		connected := false
		defer func() {
			if !connected {
				unsubA()
			}
		}()
		unsubB := b.Subscribe(func(v B) {
			vb, hasB = v, true
			recompute()
		})
		connected = true

		connecting = false
		recompute()

		return func() {
			unsubA()
			unsubB()
		}
	}, opts))
}
