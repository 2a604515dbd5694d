package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOperations_CanonicalPayload(t *testing.T) {
	ops, err := ValidateOperations([]Operation{
		Delete{ID: "p", ValidFrom: t1, ValidTo: t3},
		MatchNotExists{ID: "q"},
		Evict{ID: "r"},
	})
	require.NoError(t, err)

	payload, err := EncodeOperations(ops)
	require.NoError(t, err)
	assert.Equal(t,
		`[{"id":"p","op":"delete","valid_from":"2000-01-01T01:00:00Z","valid_to":"2000-01-01T03:00:00Z"},`+
			`{"id":"q","op":"match-not-exists"},{"id":"r","op":"evict"}]`,
		string(payload))
}

func TestDecodeOperations_RestoresHashes(t *testing.T) {
	doc := pablo(3)
	ops, err := ValidateOperations([]Operation{
		Put{Document: doc, ValidFrom: t1},
		Match{ID: doc.ID, Expected: &doc, ValidTime: t3},
		Match{ID: "ghost"},
	})
	require.NoError(t, err)

	payload, err := EncodeOperations(ops)
	require.NoError(t, err)

	back, err := DecodeOperations(payload)
	require.NoError(t, err)
	require.Len(t, back, 3)

	put := back[0].(Put)
	assert.Equal(t, doc.ID, put.Document.ID)
	assert.Equal(t, MustDocumentHash(doc), put.DocHash)
	assert.True(t, put.ValidFrom.Equal(t1))
	assert.True(t, put.ValidTo.IsZero())

	match := back[1].(Match)
	assert.Equal(t, put.DocHash, match.ExpectedHash)
	assert.NotNil(t, match.Expected)
	assert.True(t, match.ValidTime.Equal(t3))

	assert.Nil(t, back[2].(Match).Expected)
}

func TestDecodeOperations_RejectsGarbage(t *testing.T) {
	_, err := DecodeOperations([]byte(`{"op":"put"}`))
	assert.Error(t, err)

	_, err = DecodeOperations([]byte(`[{"op":"teleport","id":"x"}]`))
	assert.Error(t, err)

	_, err = DecodeOperations([]byte(`[{"op":"put","id":"x"}]`))
	assert.Error(t, err)

	ops, err := DecodeOperations(nil)
	assert.NoError(t, err)
	assert.Empty(t, ops)
}
