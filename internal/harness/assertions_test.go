package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/initiative/internal/value"
)

func runInline(t *testing.T, src string) *Result {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	result, err := Run(s)
	require.NoError(t, err)
	return result
}

const seeded = `
name: seeded
description: "one record, two queued operations"
online: false
steps:
  - action: save
    kind: parties
    id: party-1
    data: { userId: u1, name: "The Brave" }
  - action: enqueue
    verb: create
    resource: parties
  - action: enqueue
    verb: delete
    resource: encounters/enc-9
`

func TestAssertions_Hold(t *testing.T) {
	result := runInline(t, seeded+`
assertions:
  - type: entity
    kind: parties
    id: party-1
    expect: { name: "The Brave", version: 1 }
  - type: entity_absent
    kind: parties
    id: party-2
  - type: entity_count
    kind: parties
    count: 1
  - type: queue_length
    count: 2
  - type: queue_order
    resources: [parties, encounters/enc-9]
  - type: delivered
    resources: []
  - type: quarantined
    count: 0
`)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestAssertions_Fail(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		want      string
	}{
		{
			name:      "entity field differs",
			assertion: "  - type: entity\n    kind: parties\n    id: party-1\n    expect: { name: \"Cowards\" }\n",
			want:      `field "name" = "The Brave"`,
		},
		{
			name:      "entity field missing",
			assertion: "  - type: entity\n    kind: parties\n    id: party-1\n    expect: { motto: \"onward\" }\n",
			want:      "field missing",
		},
		{
			name:      "entity absent",
			assertion: "  - type: entity\n    kind: parties\n    id: party-2\n",
			want:      "Actual: absent",
		},
		{
			name:      "entity present",
			assertion: "  - type: entity_absent\n    kind: parties\n    id: party-1\n",
			want:      "no readable record parties/party-1",
		},
		{
			name:      "entity count",
			assertion: "  - type: entity_count\n    kind: parties\n    count: 3\n",
			want:      "3 live parties",
		},
		{
			name:      "queue length",
			assertion: "  - type: queue_length\n    count: 0\n",
			want:      "0 queued operations",
		},
		{
			name:      "queue order",
			assertion: "  - type: queue_order\n    resources: [encounters/enc-9, parties]\n",
			want:      "Assertion failed: queue_order",
		},
		{
			name:      "delivered",
			assertion: "  - type: delivered\n    resources: [parties]\n",
			want:      "Assertion failed: delivered",
		},
		{
			name:      "quarantined",
			assertion: "  - type: quarantined\n    count: 1\n",
			want:      "1 quarantined records",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := runInline(t, seeded+"assertions:\n"+tt.assertion)
			assert.False(t, result.Pass)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0], tt.want)
			assert.Contains(t, result.Errors[0], "Full trace:")
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, valuesEqual(value.Int(3), 3))
	assert.True(t, valuesEqual(value.String("a"), "a"))
	assert.True(t, valuesEqual(value.Bool(false), false))
	assert.True(t, valuesEqual(value.ObjectOf(value.O("a", value.Int(1))), map[string]any{"a": 1}))
	assert.False(t, valuesEqual(value.Int(3), "3"))
	assert.False(t, valuesEqual(value.Int(3), 4))
}
