package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/derive/internal/store"
)

// seedStore writes two runs: "run-1" with two sources and "run-2" with one.
func seedStore(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "derive.db")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.WriteRun(ctx, store.Run{ID: "run-1", StartedSeq: 1, Label: "first"}))
	require.NoError(t, st.WriteEmission(ctx, store.Emission{ID: "e1", RunID: "run-1", Source: "isLightTheme", Seq: 2, Value: json.RawMessage(`false`)}))
	require.NoError(t, st.WriteEmission(ctx, store.Emission{ID: "e2", RunID: "run-1", Source: "user", Seq: 3, Value: json.RawMessage(`null`)}))
	require.NoError(t, st.WriteEmission(ctx, store.Emission{ID: "e3", RunID: "run-1", Source: "isLightTheme", Seq: 4, Value: json.RawMessage(`true`)}))

	require.NoError(t, st.WriteRun(ctx, store.Run{ID: "run-2", StartedSeq: 5, Label: "second"}))
	require.NoError(t, st.WriteEmission(ctx, store.Emission{ID: "e4", RunID: "run-2", Source: "currentDate", Seq: 6, Value: json.RawMessage(`"2024-01-01T00:00:00Z"`)}))

	return dbPath
}

func TestTraceMissingDatabaseFlag(t *testing.T) {
	_, err := executeRoot(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}

func TestTraceLatestRun(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "trace", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "Run run-2 (second)\n  [6] currentDate \"2024-01-01T00:00:00Z\"\n", out)
}

func TestTraceSpecificRunAndSource(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "trace", "--db", dbPath, "--run", "run-1", "--source", "isLightTheme")
	require.NoError(t, err)
	assert.Equal(t, "Run run-1 (first)\n  [2] isLightTheme false\n  [4] isLightTheme true\n", out)
}

func TestTraceSourceWithoutEmissions(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "trace", "--db", dbPath, "--run", "run-1", "--source", "settings")
	require.NoError(t, err)
	assert.Contains(t, out, "  no emissions\n")
}

func TestTraceUnknownRun(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "trace", "--db", dbPath, "--run", "run-9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_NOT_FOUND]")
}

func TestTraceEmptyDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")

	out, err := executeRoot(t, "--format", "json", "trace", "--db", dbPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_NOT_FOUND", resp.Error.Code)
}

func TestTraceList(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "trace", "--db", dbPath, "--list")
	require.NoError(t, err)
	assert.Equal(t, "run-1  seq=1  first\nrun-2  seq=5  second\n", out)
}

func TestTraceJSONFormat(t *testing.T) {
	dbPath := seedStore(t)

	out, err := executeRoot(t, "--format", "json", "trace", "--db", dbPath, "--run", "run-1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	assert.Equal(t, "run-1", resp.Data.Run.ID)
	require.Len(t, resp.Data.Emissions, 3)
	assert.Equal(t, "user", resp.Data.Emissions[1].Source)
	assert.JSONEq(t, `null`, string(resp.Data.Emissions[1].Value))
}
