package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pablo(version int) Document {
	return MustDocument("PabloPicasso", map[string]any{
		"person/name":     "Pablo",
		"person/lastName": "Picasso",
		"person/version":  version,
	})
}

func TestDocument_HashIsContentAddressed(t *testing.T) {
	a := pablo(1)
	b := pablo(1)
	c := pablo(2)

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	hc, err := c.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.NotEqual(t, ha, hc)
	assert.Len(t, ha, 64)
}

func TestDocument_HashIncludesIdentity(t *testing.T) {
	a := MustDocument("a", map[string]any{"x": 1})
	b := MustDocument("b", map[string]any{"x": 1})
	assert.NotEqual(t, MustDocumentHash(a), MustDocumentHash(b))
}

func TestDocument_Equal(t *testing.T) {
	assert.True(t, pablo(0).Equal(pablo(0)))
	assert.False(t, pablo(0).Equal(pablo(1)))
	assert.True(t, Document{ID: "x"}.Equal(Document{ID: "x", Attrs: Object{}}))
}

func TestNewDocument_RejectsUnsupportedValues(t *testing.T) {
	_, err := NewDocument("x", map[string]any{"f": 1.25})
	assert.Error(t, err)

	_, err = NewDocument("x", map[string]any{"n": nil})
	assert.Error(t, err)

	_, err = NewDocument("x", map[string]any{"nested": map[string]any{"list": []any{1, 2.5}}})
	assert.Error(t, err)
}

func TestDocument_Validate(t *testing.T) {
	assert.Error(t, Document{}.Validate())
	assert.Error(t, Document{ID: "x", Attrs: Object{"bad": nil}}.Validate())
	assert.NoError(t, pablo(0).Validate())
}

func TestDocument_JSONRoundTrip(t *testing.T) {
	doc := MustDocument("d1", map[string]any{
		"big":  int64(1) << 60,
		"tags": []any{"a", "b"},
		"meta": map[string]any{"ok": true},
	})

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, doc.Equal(back))
	assert.Equal(t, Int(1<<60), back.Attrs["big"])
}
