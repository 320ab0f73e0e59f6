package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitySaveMergesAndBumpsVersion(t *testing.T) {
	dir := t.TempDir()

	out, _, err := cliRun(t, dir, "entity", "save", "encounters", "enc-1", "--data", `{"userId":"u1","name":"Goblin Ambush"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Saved encounters/enc-1 (version 1)")

	out, _, err = cliRun(t, dir, "entity", "save", "encounters", "enc-1", "--data", `{"userId":"u1","round":3}`)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Saved encounters/enc-1 (version 2)")

	out, _, err = cliRun(t, dir, "--format", "json", "entity", "get", "encounters", "enc-1")
	require.NoError(t, err)

	status, data, _ := decodeResponse(t, out)
	assert.Equal(t, "ok", status)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "enc-1", rec["id"])
	assert.Equal(t, "Goblin Ambush", rec["name"])
	assert.EqualValues(t, 3, rec["round"])
	assert.EqualValues(t, 2, rec["version"])
	assert.Equal(t, false, rec["deleted"])
	assert.Contains(t, rec, "lastModified")
}

func TestEntitySaveRejected(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantExit int
	}{
		{
			name:     "missing owner",
			args:     []string{"entity", "save", "encounters", "enc-1", "--data", `{"name":"Goblin Ambush"}`},
			wantCode: "VALIDATION",
			wantExit: ExitFailure,
		},
		{
			name:     "schema violation",
			args:     []string{"entity", "save", "characters", "c-1", "--data", `{"userId":"u1","level":25}`},
			wantCode: "VALIDATION",
			wantExit: ExitFailure,
		},
		{
			name:     "invalid json",
			args:     []string{"entity", "save", "encounters", "enc-1", "--data", `{nope`},
			wantCode: "USAGE",
			wantExit: ExitCommandError,
		},
		{
			name:     "not an object",
			args:     []string{"entity", "save", "encounters", "enc-1", "--data", `[1,2]`},
			wantCode: "USAGE",
			wantExit: ExitCommandError,
		},
		{
			name:     "version mismatch",
			args:     []string{"entity", "save", "encounters", "enc-1", "--data", `{"userId":"u1"}`, "--expect-version", "4"},
			wantCode: "CONFLICT",
			wantExit: ExitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := cliRun(t, t.TempDir(), tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.wantCode+"]")
		})
	}
}

func TestEntitySaveExpectVersion(t *testing.T) {
	dir := t.TempDir()

	_, _, err := cliRun(t, dir, "entity", "save", "parties", "p-1", "--data", `{"userId":"u1"}`, "--expect-version", "0")
	require.NoError(t, err)

	out, _, err := cliRun(t, dir, "entity", "save", "parties", "p-1", "--data", `{"userId":"u1","members":["c-1"]}`, "--expect-version", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "(version 2)")

	_, _, err = cliRun(t, dir, "entity", "save", "parties", "p-1", "--data", `{"userId":"u1"}`, "--expect-version", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestEntityGetNotFound(t *testing.T) {
	out, _, err := cliRun(t, t.TempDir(), "--format", "json", "entity", "get", "encounters", "enc-404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, _, cliErr := decodeResponse(t, out)
	assert.Equal(t, "error", status)
	require.NotNil(t, cliErr)
	assert.Equal(t, "NOT_FOUND", cliErr.Code)
}

func TestEntityDeleteAndList(t *testing.T) {
	dir := t.TempDir()

	for _, id := range []string{"enc-1", "enc-2"} {
		_, _, err := cliRun(t, dir, "entity", "save", "encounters", id, "--data", `{"userId":"u1"}`)
		require.NoError(t, err)
	}

	out, _, err := cliRun(t, dir, "entity", "delete", "encounters", "enc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Deleted encounters/enc-1 (version 1)")

	out, _, err = cliRun(t, dir, "entity", "list", "encounters")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"id":"enc-2"`)

	// The tombstone is still readable through get.
	out, _, err = cliRun(t, dir, "entity", "get", "encounters", "enc-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted":true`)

	_, _, err = cliRun(t, dir, "entity", "delete", "encounters", "enc-404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestEntityListJSON(t *testing.T) {
	dir := t.TempDir()

	out, _, err := cliRun(t, dir, "--format", "json", "entity", "list", "characters")
	require.NoError(t, err)
	_, data, _ := decodeResponse(t, out)
	assert.JSONEq(t, "[]", string(data))

	_, _, err = cliRun(t, dir, "entity", "save", "characters", "c-1", "--data", `{"userId":"u1","class":"wizard","level":3}`)
	require.NoError(t, err)

	out, _, err = cliRun(t, dir, "--format", "json", "entity", "list", "characters")
	require.NoError(t, err)
	_, data, _ = decodeResponse(t, out)

	var recs []map[string]any
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "wizard", recs[0]["class"])
}

func TestEntityQuarantinedEmpty(t *testing.T) {
	out, _, err := cliRun(t, t.TempDir(), "entity", "quarantined")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing quarantined.")
}

func TestEntitySaveQuotaExceeded(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "  capacity_bytes: 64\n")

	big := `{"userId":"u1","name":"` + strings.Repeat("x", 200) + `"}`
	out, errOut, err := cliRun(t, dir, "entity", "save", "encounters", "enc-1", "--data", big)
	require.Error(t, err)
	assert.Equal(t, ExitQuotaExceeded, GetExitCode(err))
	assert.Contains(t, out, "Error [QUOTA_EXCEEDED]")
	assert.Contains(t, errOut, "local storage is full")
}
