package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysWithoutWhitespace(t *testing.T) {
	obj := Object{
		"b": Int(1),
		"a": String("x"),
		"c": Array{Bool(true), Int(-3)},
	}

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":[true,-3]}`, string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("<a & b>"))
	require.NoError(t, err)
	assert.Equal(t, `"<a & b>"`, string(got))
}

func TestMarshalCanonical_LineSeparatorsLiteral(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b\u2029c"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\u2029c\"", string(got))
}

func TestMarshalCanonical_EscapedBackslashKept(t *testing.T) {
	got, err := MarshalCanonical(String(`a\u2028`))
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	decomposed, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	composed, err := MarshalCanonical(String("\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D.. which sort before U+FB01 in UTF-16
	// but after it in UTF-8.
	obj := Object{"\ufb01": Int(1), "\U0001F600": Int(2)}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\ufb01\":1}", string(got))
}

func TestMarshalCanonical_RejectsFloatsAndNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"x": 1.5})
	assert.Error(t, err)

	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestMarshalCanonical_RejectsInvalidUTF8(t *testing.T) {
	_, err := MarshalCanonical(String("\xff"))
	assert.Error(t, err)

	_, err = MarshalCanonical(Object{"\xfe": Int(1)})
	assert.Error(t, err)

	_, err = DocumentHash(Document{ID: "a", Attrs: Object{"name": String("\xff")}})
	assert.Error(t, err)
}

func TestMarshalCanonical_GenericMap(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"z": []any{"a", int64(2)}, "y": false})
	require.NoError(t, err)
	assert.Equal(t, `{"y":false,"z":["a",2]}`, string(got))
}
