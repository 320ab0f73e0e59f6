package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("test")
	var _ Value = Int(42)
	var _ Value = Float(0.5)
	var _ Value = Bool(true)
	var _ Value = Array{String("a"), Int(1)}
	var _ Value = Object{"key": String("value")}
}

func TestObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{
		"a":  Int(1),
		"A":  Int(2),
		"aa": Int(3),
		"aA": Int(4),
		"Aa": Int(5),
		"AA": Int(6),
	}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestUnmarshalNumbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"int", `3`, Int(3)},
		{"negative int", `-12`, Int(-12)},
		{"float", `0.5`, Float(0.5)},
		{"exponent", `1e3`, Float(1000)},
		{"null", `null`, Null{}},
		{"bool", `true`, Bool(true)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unmarshal([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectJSONRoundTripKeepsTypes(t *testing.T) {
	obj := ObjectOf(
		O("name", String("Goblin Ambush")),
		O("round", Int(3)),
		O("cr", Float(0.25)),
		O("active", Bool(true)),
		O("combatants", Array{ObjectOf(O("hp", Int(7)))}),
	)

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"active":true,"combatants":[{"hp":7}],"cr":0.25,"name":"Goblin Ambush","round":3}`, string(data))

	var decoded Object
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestObjectUnmarshalRejectsNonObject(t *testing.T) {
	var obj Object
	err := json.Unmarshal([]byte(`[1,2]`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object")
}

func TestMergeIsShallowAndNonDestructive(t *testing.T) {
	base := ObjectOf(
		O("name", String("Goblin Ambush")),
		O("state", ObjectOf(O("round", Int(1)), O("turn", Int(2)))),
	)
	patch := ObjectOf(
		O("round", Int(3)),
		O("state", ObjectOf(O("round", Int(4)))),
	)

	merged := Merge(base, patch)

	assert.Equal(t, String("Goblin Ambush"), merged["name"])
	assert.Equal(t, Int(3), merged["round"])
	assert.Equal(t, ObjectOf(O("round", Int(4))), merged["state"], "nested objects are replaced")
	assert.NotContains(t, base, "round", "base must not be mutated")
}

func TestFromAnyYAMLShapes(t *testing.T) {
	got, err := FromAny(map[string]any{
		"hp":    12,
		"speed": 30.0,
		"cr":    0.5,
		"tags":  []any{"undead", nil},
	})
	require.NoError(t, err)

	assert.Equal(t, Object{
		"hp":    Int(12),
		"speed": Int(30),
		"cr":    Float(0.5),
		"tags":  Array{String("undead"), Null{}},
	}, got)
}

func TestFromAnyRejectsUnsupported(t *testing.T) {
	_, err := FromAny(map[string]any{"fn": func() {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestToAnyInverse(t *testing.T) {
	obj := ObjectOf(O("n", Int(1)), O("s", String("x")), O("z", Null{}))
	assert.Equal(t, map[string]any{"n": int64(1), "s": "x", "z": nil}, ToAny(obj))
}

func TestStringField(t *testing.T) {
	obj := ObjectOf(O("userId", String("u1")), O("round", Int(3)))

	s, ok := obj.StringField("userId")
	assert.True(t, ok)
	assert.Equal(t, "u1", s)

	_, ok = obj.StringField("round")
	assert.False(t, ok)

	_, ok = obj.StringField("missing")
	assert.False(t, ok)
}
