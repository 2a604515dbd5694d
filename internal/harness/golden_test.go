package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalTrace_Canonical(t *testing.T) {
	result := NewResult()
	result.addTrace(TraceEvent{Step: 1, Outcome: OutcomeCommitted, TxID: 1, TxTime: "2000-01-01T00:00:00Z", Operations: 2})
	result.addTrace(TraceEvent{Step: 2, Outcome: OutcomeMalformed, Operations: 1})

	data, err := MarshalTrace("example", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"example","trace":[`+
			`{"ops":2,"outcome":"committed","step":1,"tx_id":1,"tx_time":"2000-01-01T00:00:00Z"},`+
			`{"ops":1,"outcome":"malformed","step":2}]}`,
		string(data))
}

func TestMarshalTrace_Empty(t *testing.T) {
	data, err := MarshalTrace("empty", NewResult())
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"empty","trace":[]}`, string(data))
}
