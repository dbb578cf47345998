package clock

import "sync/atomic"

// Seq is a monotonic logical clock used to order recorded emissions.
//
// Every recorded emission is stamped with a strictly increasing seq number.
// Ordering in traces and in the emission log uses seq, never wall time, so
// a replayed scenario produces the same order on every run.
//
// Thread-safety: Seq is safe for concurrent use (atomic operations).
type Seq struct {
	n atomic.Int64
}

// NewSeq creates a new logical clock starting at 0.
func NewSeq() *Seq {
	return &Seq{}
}

// NewSeqAt creates a logical clock starting at a specific sequence number.
// Used to continue numbering after the last emission already in a log.
func NewSeqAt(start int64) *Seq {
	s := &Seq{}
	s.n.Store(start)
	return s
}

// Next returns the next sequence number and increments the clock.
func (s *Seq) Next() int64 {
	return s.n.Add(1)
}

// Current returns the current sequence number without incrementing.
func (s *Seq) Current() int64 {
	return s.n.Load()
}
