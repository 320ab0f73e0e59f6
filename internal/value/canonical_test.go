package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"max int64", Int(9223372036854775807), "9223372036854775807"},
		{"float", Float(0.25), "0.25"},
		{"integral float", Float(30), "30.0"},
		{"negative integral float", Float(-2), "-2.0"},
		{"bool true", Bool(true), "true"},
		{"null", Null{}, "null"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"array of ints", Array{Int(1), Int(2), Int(3)}, "[1,2,3]"},
		{"simple object", Object{"a": Int(1)}, `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalKeepsNumberVariant(t *testing.T) {
	in := Object{"hp": Int(7), "initiative": Float(12), "cr": Float(0.5)}

	b, err := MarshalCanonical(in)
	require.NoError(t, err)
	assert.Equal(t, `{"cr":0.5,"hp":7,"initiative":12.0}`, string(b))

	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := Object{
		"zebra": Int(1),
		"alpha": Int(2),
		"beta":  Int(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":2,"beta":3,"zebra":1}`, string(result))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	result, err := MarshalCanonical(String("<b>&</b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<b>&</b>"`, string(result))
}

func TestMarshalCanonicalLineSeparatorsLiteral(t *testing.T) {
	result, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(result))
}

func TestMarshalCanonicalEscapesControls(t *testing.T) {
	result, err := MarshalCanonical(String("a\"b\\c\nd\x01"))
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001"`, string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := "e\u0301"
	composed := "\u00e9"

	a, err := MarshalCanonical(Object{decomposed: String(decomposed)})
	require.NoError(t, err)
	b, err := MarshalCanonical(Object{composed: String(composed)})
	require.NoError(t, err)

	assert.Equal(t, string(b), string(a))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "\u00e9nc-1", NormalizeKey("e\u0301nc-1"))
	assert.Equal(t, "enc-1", NormalizeKey("enc-1"))
}
