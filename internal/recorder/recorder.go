// Package recorder captures the values published by named observables.
//
// Each emission is stamped with a logical sequence number, serialized as
// canonical JSON and given a content-addressed ID. Recorded emissions are
// kept in memory and, when a Sink is configured, appended to it (normally a
// *store.Store).
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/ir"
	"github.com/roach88/derive/internal/observable"
	"github.com/roach88/derive/internal/store"
)

// Sink persists runs and emissions. *store.Store implements it.
type Sink interface {
	WriteRun(ctx context.Context, run store.Run) error
	WriteEmission(ctx context.Context, e store.Emission) error
}

// Event is one recorded emission.
type Event struct {
	ID     string          `json:"id"`
	Seq    int64           `json:"seq"`
	Source string          `json:"source"`
	Value  json.RawMessage `json:"value"`
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSink appends every run and emission to s.
func WithSink(s Sink) Option {
	return func(r *Recorder) {
		r.sink = s
	}
}

// WithRunIDGenerator overrides the default UUIDv7 run IDs.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(r *Recorder) {
		r.ids = g
	}
}

// WithSeq sets the logical clock. Defaults to a clock starting at 0.
func WithSeq(s *clock.Seq) Option {
	return func(r *Recorder) {
		r.seq = s
	}
}

// WithLabel attaches a human-readable label to the run.
func WithLabel(label string) Option {
	return func(r *Recorder) {
		r.label = label
	}
}

// WithObserver calls fn after each emission is recorded.
func WithObserver(fn func(Event)) Option {
	return func(r *Recorder) {
		r.observer = fn
	}
}

// Recorder records emissions for one run.
//
// A Recorder is driven by observable callbacks, so like the observables
// themselves it must only be used from the goroutine that owns them.
type Recorder struct {
	ctx   context.Context
	runID string
	label string

	ids      RunIDGenerator
	seq      *clock.Seq
	sink     Sink
	observer func(Event)

	events []Event
	unsubs []observable.Unsubscriber
	err    error
	closed bool
}

// New starts a run. If a sink is configured the run record is written
// immediately.
func New(ctx context.Context, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		ctx: ctx,
		ids: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.seq == nil {
		r.seq = clock.NewSeq()
	}
	r.runID = r.ids.Generate()

	if r.sink != nil {
		run := store.Run{ID: r.runID, StartedSeq: r.seq.Next(), Label: r.label}
		if err := r.sink.WriteRun(ctx, run); err != nil {
			return nil, fmt.Errorf("start run: %w", err)
		}
	}

	slog.Debug("recording started", "run_id", r.runID, "label", r.label)
	return r, nil
}

// RunID returns the identifier of the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// Track subscribes to src and records each value it publishes under name,
// starting with the replayed current value if there is one.
// The returned Unsubscriber stops tracking src; Close stops everything.
func Track[T any](r *Recorder, name string, src observable.Readable[T]) observable.Unsubscriber {
	unsub := src.Subscribe(func(v T) {
		r.Record(name, v)
	})
	r.unsubs = append(r.unsubs, unsub)
	return unsub
}

// Record appends one emission. Serialization or sink failures are logged
// and kept; the first one is returned by Err and Close.
func (r *Recorder) Record(source string, value any) {
	if r.closed {
		return
	}

	canonical, err := ir.Canonical(value)
	if err != nil {
		r.fail(fmt.Errorf("record %s: %w", source, err))
		return
	}

	seq := r.seq.Next()
	id, err := ir.EmissionID(r.runID, source, seq, canonical)
	if err != nil {
		r.fail(fmt.Errorf("record %s: %w", source, err))
		return
	}

	ev := Event{ID: id, Seq: seq, Source: source, Value: canonical}
	r.events = append(r.events, ev)

	if r.sink != nil {
		err := r.sink.WriteEmission(r.ctx, store.Emission{
			ID:     id,
			RunID:  r.runID,
			Source: source,
			Seq:    seq,
			Value:  canonical,
		})
		if err != nil {
			r.fail(fmt.Errorf("persist %s seq=%d: %w", source, seq, err))
		}
	}

	slog.Debug("emission recorded", "source", source, "seq", seq)

	if r.observer != nil {
		r.observer(ev)
	}
}

// Events returns a copy of the emissions recorded so far, in seq order.
func (r *Recorder) Events() []Event {
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsFor returns the recorded emissions of one source.
func (r *Recorder) EventsFor(source string) []Event {
	var out []Event
	for _, ev := range r.events {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

// Err returns the first recording failure, if any.
func (r *Recorder) Err() error {
	return r.err
}

// Close unsubscribes every tracked source and returns Err.
// Calling Close again is a no-op.
func (r *Recorder) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil

	slog.Debug("recording closed", "run_id", r.runID, "events", len(r.events))
	return r.err
}

func (r *Recorder) fail(err error) {
	slog.Error("recording failed", "run_id", r.runID, "error", err)
	if r.err == nil {
		r.err = err
	}
}
