package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/ir"
)

// AssertionContext provides the state assertions inspect besides the trace.
type AssertionContext struct {
	Clock *clock.Fake
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Source, event.Value)
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertEmissions:
		return assertEmissions(result.Trace, a)
	case AssertCount:
		return assertCount(result.Trace, a)
	case AssertActiveTickers:
		return assertActiveTickers(result.Trace, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEmissions checks that the source's recorded values equal the
// expected sequence exactly. Values are compared in canonical form.
func assertEmissions(trace []TraceEvent, a Assertion) error {
	var actual []string
	for _, ev := range trace {
		if ev.Source == a.Source {
			actual = append(actual, string(ev.Value))
		}
	}

	expected := make([]string, len(a.Values))
	for i, v := range a.Values {
		canonical, err := ir.Canonical(v)
		if err != nil {
			return fmt.Errorf("values[%d]: %w", i, err)
		}
		expected[i] = string(canonical)
	}

	if equalSequences(expected, actual) {
		return nil
	}

	return &AssertionError{
		Type:     AssertEmissions,
		Expected: fmt.Sprintf("%s emits [%s]", a.Source, strings.Join(expected, ", ")),
		Actual:   fmt.Sprintf("[%s]", strings.Join(actual, ", ")),
		Trace:    trace,
	}
}

// assertCount checks how many times the source was recorded.
func assertCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Source == a.Source {
			n++
		}
	}
	if n == a.Count {
		return nil
	}

	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%s recorded %d times", a.Source, a.Count),
		Actual:   fmt.Sprintf("recorded %d times", n),
		Trace:    trace,
	}
}

// assertActiveTickers checks how many clock tickers are still running,
// which shows whether time-based sources stopped when unsubscribed.
func assertActiveTickers(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if actx == nil || actx.Clock == nil {
		return fmt.Errorf("active_tickers requires a simulated clock")
	}

	n := actx.Clock.TickerCount()
	if n == a.Count {
		return nil
	}

	return &AssertionError{
		Type:     AssertActiveTickers,
		Expected: fmt.Sprintf("%d active tickers", a.Count),
		Actual:   fmt.Sprintf("%d active tickers", n),
		Trace:    trace,
	}
}

func equalSequences(expected, actual []string) bool {
	if len(expected) != len(actual) {
		return false
	}
	for i := range expected {
		if expected[i] != actual[i] {
			return false
		}
	}
	return true
}
