package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/entity"
)

func TestStatusEmpty(t *testing.T) {
	out, _, err := cliRun(t, t.TempDir(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Storage:     sqlite")
	assert.Contains(t, out, "Pending:     0")
	assert.Contains(t, out, "Quarantined: 0")
	assert.NotContains(t, out, "Head:")
}

func TestStatusReportsHeadAndQuarantine(t *testing.T) {
	dir := t.TempDir()
	seedRaw(t, dir, map[string]string{
		entity.DefaultNamespace + "entity:encounters:enc-1": `{"id":"enc-1","version":`,
	})

	// Saving over the unreadable record sets it aside first.
	out, _, err := cliRun(t, dir, "entity", "save", "encounters", "enc-1", "--data", `{"userId":"u1"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "(version 1)")

	_, _, err = cliRun(t, dir, "queue", "enqueue", "replace", "encounters/enc-1", "--payload", `{"id":"enc-1"}`)
	require.NoError(t, err)

	out, _, err = cliRun(t, dir, "--format", "json", "status")
	require.NoError(t, err)
	_, data, _ := decodeResponse(t, out)

	var st struct {
		Driver      string         `json:"driver"`
		Pending     int            `json:"pendingCount"`
		Head        map[string]any `json:"head"`
		Quarantined int            `json:"quarantined"`
	}
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "sqlite", st.Driver)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.Quarantined)
	require.NotNil(t, st.Head)
	assert.Equal(t, "encounters/enc-1", st.Head["resource"])

	out, _, err = cliRun(t, dir, "entity", "quarantined")
	require.NoError(t, err)
	assert.Contains(t, out, "encounters/enc-1")
}
