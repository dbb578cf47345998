package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Run is one recording session.
type Run struct {
	ID         string `json:"id"`
	StartedSeq int64  `json:"started_seq"`
	Label      string `json:"label,omitempty"`
}

// Emission is one value published by a named observable during a run.
// Value holds canonical JSON.
type Emission struct {
	ID     string          `json:"id"`
	RunID  string          `json:"run_id"`
	Source string          `json:"source"`
	Seq    int64           `json:"seq"`
	Value  json.RawMessage `json:"value"`
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("write run: empty id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_seq, label)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.StartedSeq, run.Label)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEmission inserts an emission record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: duplicate IDs are silently
// ignored. Other violations (unknown run, invalid JSON) still return errors.
func (s *Store) WriteEmission(ctx context.Context, e Emission) error {
	if e.ID == "" {
		return fmt.Errorf("write emission: empty id")
	}
	if !json.Valid(e.Value) {
		return fmt.Errorf("write emission %s: value is not valid JSON", e.ID)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emissions (id, run_id, source, seq, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.RunID, e.Source, e.Seq, string(e.Value))
	if err != nil {
		return fmt.Errorf("write emission: %w", err)
	}
	return nil
}
