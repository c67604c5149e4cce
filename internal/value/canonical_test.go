package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshal(t *testing.T, v Value) string {
	t.Helper()
	b, err := MarshalCanonical(v)
	require.NoError(t, err)
	return string(b)
}

func TestMarshalCanonical_SortsObjectKeys(t *testing.T) {
	obj := NewObject(map[string]Value{
		"zeta":  Int(1),
		"alpha": Int(2),
		"mid":   Int(3),
	})
	assert.Equal(t, `{"alpha":2,"mid":3,"zeta":1}`, mustMarshal(t, obj))
}

func TestMarshalCanonical_Sentinels(t *testing.T) {
	assert.Equal(t, `{"$skip":true}`, mustMarshal(t, Skip{}))
	assert.Equal(t, `{"$unit":true}`, mustMarshal(t, Unit{}))
	assert.Equal(t, `{"$flushed":"boom"}`, mustMarshal(t, Flushed{Inner: Text("boom")}))
	assert.Equal(t, `7`, mustMarshal(t, Key(7)), "item keys encode as bare integers")
}

func TestMarshalCanonical_ListCarriesItemKeys(t *testing.T) {
	l := NewList([]ListItem{
		{Key: 0, Value: Text("a")},
		{Key: 2, Value: Int(5)},
	})
	assert.Equal(t, `[{"key":0,"value":"a"},{"key":2,"value":5}]`, mustMarshal(t, l))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	assert.Equal(t, `"<a href=\"x\">&"`, mustMarshal(t, Text(`<a href="x">&`)))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "e" + combining acute normalizes to the precomposed form.
	decomposed := Text("é")
	precomposed := Text("é")
	assert.Equal(t, mustMarshal(t, precomposed), mustMarshal(t, decomposed))
}

func TestMarshalCanonical_FloatShortestForm(t *testing.T) {
	assert.Equal(t, `0.1`, mustMarshal(t, Float(0.1)))
	assert.Equal(t, `1e+21`, mustMarshal(t, Float(1e21)))
}

func TestMarshalCanonical_NilFails(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestUnmarshalCanonical_RoundTrip(t *testing.T) {
	cases := []Value{
		Int(42),
		Float(2.5),
		Text("héllo"),
		Bool(true),
		Unit{},
		Skip{},
		Flushed{Inner: Int(7)},
		NewObject(map[string]Value{"a": Int(1), "nested": NewObject(map[string]Value{"b": Text("x")})}),
		NewList([]ListItem{{Key: 3, Value: Bool(false)}, {Key: 9, Value: Unit{}}}),
	}
	for _, v := range cases {
		b, err := MarshalCanonical(v)
		require.NoError(t, err)
		got, err := UnmarshalCanonical(b)
		require.NoError(t, err, "decoding %s", b)
		assert.True(t, Equal(v, got), "round trip of %s gave %s", String(v), String(got))
	}
}

func TestUnmarshalCanonical_IntVsFloat(t *testing.T) {
	v, err := UnmarshalCanonical([]byte(`5`))
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)

	v, err = UnmarshalCanonical([]byte(`5.0`))
	require.NoError(t, err)
	assert.Equal(t, Float(5), v)

	v, err = UnmarshalCanonical([]byte(`1e2`))
	require.NoError(t, err)
	assert.Equal(t, Float(100), v)
}

func TestUnmarshalCanonical_MalformedList(t *testing.T) {
	_, err := UnmarshalCanonical([]byte(`[1,2,3]`))
	assert.Error(t, err, "bare arrays are not keyed items")

	_, err = UnmarshalCanonical([]byte(`[{"value":1}]`))
	assert.Error(t, err, "items need keys")
}
