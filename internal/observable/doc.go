// Package observable implements the derivation engine: observable cells,
// lazily connected derivations, and stateful combinators.
//
// # Cells
//
// A Writable holds at most one current value and a list of subscribers.
// Set stores a value and notifies subscribers synchronously, in the order
// they subscribed. A new subscriber is immediately handed the current value,
// if there is one (replay).
//
//	counter := observable.NewWritableOf(0)
//	unsubscribe := counter.Subscribe(func(n int) { fmt.Println(n) }) // prints 0
//	counter.Set(1)                                                   // prints 1
//	unsubscribe()
//
// # Lazy start/stop
//
// A cell built with a StartFunc runs it on the transition from zero to one
// subscriber and runs the returned stop function on the transition back to
// zero. Ticker uses this to hold a timer only while someone is listening.
//
// # Derivations
//
// Derive, DeriveStateful and Derive2 build read-only observables from other
// observables. A derivation subscribes to its sources only while it has
// subscribers of its own, recomputes once per source emission, and publishes
// the result before its own subscribers run:
//
//	set source → recompute derivation → notify derivation's subscribers
//
// DeriveStateful takes a factory that is called once per derivation and
// returns a Combinator with private memory. Previous and Pairwise cover the
// common "compare with the prior emission" case:
//
//	hasNewer := observable.DeriveStateful(repo,
//	    observable.CompareWithPrevious(func(prev, curr Repo) bool {
//	        return !curr.Date.Before(prev.Date)
//	    }, false),
//	    observable.WithInitial(false),
//	)
//
// # Threading
//
// Nothing in this package locks. All cells used together must be driven from
// one goroutine; see package loop for the event loop that owns them.
//
// # Failures
//
// Combining functions and subscribers are expected not to panic. If one
// does, Set lets the panic reach its caller and later subscribers miss the
// emission. TrySet reports the same failure as an *EngineError instead.
package observable
