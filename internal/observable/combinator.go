package observable

// Combinator maps a source emission to a derived value. Implementations may
// keep private memory between calls; DeriveStateful guarantees one instance
// per derivation.
type Combinator[S, R any] interface {
	Combine(v S) R
}

// CombineFunc adapts a stateless function to Combinator.
type CombineFunc[S, R any] func(S) R

// Combine calls f.
func (f CombineFunc[S, R]) Combine(v S) R {
	return f(v)
}

// Previous remembers the last value handed to Swap. The zero value holds no
// history, which callers can tell apart from a remembered zero value.
type Previous[T any] struct {
	value T
	ok    bool
}

// Swap records v and returns what was recorded before it.
// ok is false on the first call.
func (p *Previous[T]) Swap(v T) (prev T, ok bool) {
	prev, ok = p.value, p.ok
	p.value, p.ok = v, true
	return prev, ok
}

// Peek returns the recorded value without changing it.
func (p *Previous[T]) Peek() (T, bool) {
	return p.value, p.ok
}

// Reset forgets the recorded value.
func (p *Previous[T]) Reset() {
	var zero T
	p.value, p.ok = zero, false
}

// PairwiseFunc receives the prior and current emission. hasPrev is false on
// the first emission, when prev is the zero value.
type PairwiseFunc[T, R any] func(prev T, hasPrev bool, curr T) R

// Pairwise is a Combinator that hands each emission to fn together with the
// emission before it.
type Pairwise[T, R any] struct {
	memory Previous[T]
	fn     PairwiseFunc[T, R]
}

// NewPairwise returns a factory for DeriveStateful. Each call of the factory
// yields a combinator with its own, empty memory.
func NewPairwise[T, R any](fn PairwiseFunc[T, R]) func() Combinator[T, R] {
	return func() Combinator[T, R] {
		return &Pairwise[T, R]{fn: fn}
	}
}

// Combine implements Combinator.
func (p *Pairwise[T, R]) Combine(v T) R {
	prev, ok := p.memory.Swap(v)
	return p.fn(prev, ok, v)
}

// CompareWithPrevious returns a factory for a boolean combinator that
// reports cmp(previous, current) for every emission after the first, and
// empty for the first emission, when there is nothing to compare against.
func CompareWithPrevious[T any](cmp func(prev, curr T) bool, empty bool) func() Combinator[T, bool] {
	return NewPairwise(func(prev T, hasPrev bool, curr T) bool {
		if !hasPrev {
			return empty
		}
		return cmp(prev, curr)
	})
}
