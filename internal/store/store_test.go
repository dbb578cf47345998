package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func emission(id, run, source string, seq int64, value string) Emission {
	return Emission{ID: id, RunID: run, Source: source, Seq: seq, Value: json.RawMessage(value)}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.WriteRun(context.Background(), Run{ID: "r1", StartedSeq: 1}))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	runs, err := s2.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 1, "data survives reopen")
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "test.db"))
	require.Error(t, err)
}

func TestClose_MultipleCalls(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name string
		want string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.pragma(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMigrations_AppliedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(schemaVersion()), got)
}

func TestWriteEmission_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, Run{ID: "r1", StartedSeq: 1, Label: "demo"}))
	require.NoError(t, s.WriteRun(ctx, Run{ID: "r1", StartedSeq: 99, Label: "ignored"}))

	e := emission("e1", "r1", "currentDate", 2, `"2024-01-01T00:00:00Z"`)
	require.NoError(t, s.WriteEmission(ctx, e))
	require.NoError(t, s.WriteEmission(ctx, e))

	got, err := s.ReadEmissions(ctx, "r1", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e, got[0])

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Run{{ID: "r1", StartedSeq: 1, Label: "demo"}}, runs)
}

func TestWriteEmission_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEmission(context.Background(), emission("e1", "nope", "user", 1, `null`))
	require.Error(t, err, "foreign key enforced")
}

func TestWriteEmission_RejectsInvalid(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, Run{ID: "r1"}))

	assert.Error(t, s.WriteEmission(ctx, emission("", "r1", "user", 1, `null`)))
	assert.Error(t, s.WriteEmission(ctx, emission("e1", "r1", "user", 1, `{not json`)))
	assert.Error(t, s.WriteRun(ctx, Run{}))
}

func TestReadEmissions_DeterministicOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, Run{ID: "r1"}))

	// Inserted out of order; b and a share seq 2.
	require.NoError(t, s.WriteEmission(ctx, emission("c", "r1", "user", 3, `null`)))
	require.NoError(t, s.WriteEmission(ctx, emission("b", "r1", "theme", 2, `true`)))
	require.NoError(t, s.WriteEmission(ctx, emission("a", "r1", "user", 2, `null`)))
	require.NoError(t, s.WriteEmission(ctx, emission("d", "r1", "user", 1, `null`)))

	got, err := s.ReadEmissions(ctx, "r1", "")
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)

	users, err := s.ReadEmissions(ctx, "r1", "user")
	require.NoError(t, err)
	assert.Len(t, users, 3)
	for _, e := range users {
		assert.Equal(t, "user", e.Source)
	}
}

func TestReadEmissions_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadEmissions(context.Background(), "missing", "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLatestRunAndMaxSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx)
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	seq, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, s.WriteRun(ctx, Run{ID: "r1", StartedSeq: 1}))
	require.NoError(t, s.WriteEmission(ctx, emission("e1", "r1", "user", 5, `null`)))
	require.NoError(t, s.WriteRun(ctx, Run{ID: "r2", StartedSeq: 6}))

	latest, err := s.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.ID)

	seq, err = s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), seq)
}
