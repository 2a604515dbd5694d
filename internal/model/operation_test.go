package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t1 = time.Date(2000, 1, 1, 1, 0, 0, 0, time.UTC)
	t3 = time.Date(2000, 1, 1, 3, 0, 0, 0, time.UTC)
)

func TestValidateOperations_FillsHashes(t *testing.T) {
	doc := pablo(0)
	ops, err := ValidateOperations([]Operation{
		Put{Document: doc, ValidFrom: t1},
		Match{Expected: &doc},
	})
	require.NoError(t, err)

	put := ops[0].(Put)
	assert.Equal(t, MustDocumentHash(doc), put.DocHash)

	match := ops[1].(Match)
	assert.Equal(t, doc.ID, match.ID)
	assert.Equal(t, put.DocHash, match.ExpectedHash)
}

func TestValidateOperations_RejectsDegenerateSpan(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"put from == to", Put{Document: pablo(0), ValidFrom: t1, ValidTo: t1}},
		{"put from > to", Put{Document: pablo(0), ValidFrom: t3, ValidTo: t1}},
		{"delete from > to", Delete{ID: "x", ValidFrom: t3, ValidTo: t1}},
		{"end without start", Delete{ID: "x", ValidTo: t3}},
		{"put starting at end of time", Put{Document: pablo(0), ValidFrom: EndOfTime}},
		{"delete starting at end of time", Delete{ID: "x", ValidFrom: EndOfTime}},
		{"put beyond end of time", Put{Document: pablo(0), ValidFrom: t1, ValidTo: EndOfTime.Add(time.Second)}},
		{"empty delete id", Delete{}},
		{"empty evict id", Evict{}},
		{"empty match-not-exists id", MatchNotExists{}},
		{"put without id", Put{Document: Document{}}},
		{"match id mismatch", Match{ID: "other", Expected: &Document{ID: "x"}}},
		{"nil operation", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateOperations([]Operation{Evict{ID: "ok"}, tt.op})
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
			assert.Contains(t, err.Error(), "operation 1")
		})
	}
}

func TestValidateOperations_AcceptsSpanEndingAtEndOfTime(t *testing.T) {
	ops, err := ValidateOperations([]Operation{Put{Document: pablo(0), ValidFrom: t1, ValidTo: EndOfTime}})
	require.NoError(t, err)
	assert.True(t, ops[0].(Put).ValidTo.Equal(EndOfTime))
}

func TestValidateOperations_RejectsBadIdentifiersAndStrings(t *testing.T) {
	tests := []struct {
		name string
		op   Operation
	}{
		{"invalid utf-8 id", Delete{ID: "a\xff"}},
		{"nul in id", Evict{ID: "a\x00b"}},
		{"nul in put id", Put{Document: Document{ID: "a\x00b", Attrs: Object{}}}},
		{"invalid utf-8 string", Put{Document: Document{ID: "a", Attrs: Object{"name": String("\xff")}}}},
		{"invalid utf-8 nested string", Put{Document: Document{ID: "a", Attrs: Object{"tags": Array{String("ok"), String("\xfe")}}}}},
		{"invalid utf-8 key", Put{Document: Document{ID: "a", Attrs: Object{"\xff": Int(1)}}}},
		{"invalid utf-8 expected", Match{ID: "a", Expected: &Document{ID: "a", Attrs: Object{"name": String("\xfe")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateOperations([]Operation{tt.op})
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestNewDocument_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewDocument("a", map[string]any{"name": "\xff"})
	require.Error(t, err)

	_, err = NewDocument("a", map[string]any{"\xfe": "x"})
	require.Error(t, err)
}

func TestValidateOperations_DoesNotMutateInput(t *testing.T) {
	in := []Operation{Put{Document: pablo(0)}}
	_, err := ValidateOperations(in)
	require.NoError(t, err)
	assert.Empty(t, in[0].(Put).DocHash)
}

func TestIsPredicate(t *testing.T) {
	assert.True(t, IsPredicate(Match{ID: "x"}))
	assert.True(t, IsPredicate(MatchNotExists{ID: "x"}))
	assert.False(t, IsPredicate(Put{}))
	assert.False(t, IsPredicate(Delete{}))
	assert.False(t, IsPredicate(Evict{}))
}

func TestErrorPredicates(t *testing.T) {
	err := WrapError(ErrCodeLogAppendFailure, assert.AnError, "append")
	assert.True(t, IsLogAppendFailure(err))
	assert.False(t, IsTimeout(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ErrorCode(""), Code(assert.AnError))
}
