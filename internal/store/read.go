package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ReadEmissions returns the emissions of a run, optionally restricted to one
// source. Results are ordered by seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEmissions(ctx context.Context, runID, source string) ([]Emission, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if source == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, run_id, source, seq, value
			FROM emissions
			WHERE run_id = ?
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, runID)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, run_id, source, seq, value
			FROM emissions
			WHERE run_id = ? AND source = ?
			ORDER BY seq ASC, id COLLATE BINARY ASC
		`, runID, source)
	}
	if err != nil {
		return nil, fmt.Errorf("query emissions: %w", err)
	}
	defer rows.Close()

	emissions := []Emission{}
	for rows.Next() {
		var (
			e     Emission
			value string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Source, &e.Seq, &value); err != nil {
			return nil, fmt.Errorf("scan emission: %w", err)
		}
		e.Value = json.RawMessage(value)
		emissions = append(emissions, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emissions: %w", err)
	}
	return emissions, nil
}

// ListRuns returns every run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_seq, label
		FROM runs
		ORDER BY started_seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedSeq, &r.Label); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently started run.
// Returns sql.ErrNoRows (wrapped) if the store is empty.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_seq, label
		FROM runs
		ORDER BY started_seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`).Scan(&r.ID, &r.StartedSeq, &r.Label)
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// MaxSeq returns the highest sequence number recorded so far, or 0.
// Recorders resume their logical clock from it so that seq stays monotonic
// across runs sharing one database.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(seq) FROM emissions), 0),
			COALESCE((SELECT MAX(started_seq) FROM runs), 0)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}
