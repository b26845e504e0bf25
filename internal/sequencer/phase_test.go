package sequencer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_TextRoundTrip(t *testing.T) {
	for p := PhaseIdle; p <= PhaseComplete; p++ {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var back Phase
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, p, back)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("dancing")))
}

func TestSnapshot_JSON(t *testing.T) {
	out, err := json.Marshal(Snapshot{Name: "bar#1", RunID: "run-1", Phase: PhaseNarrating, ActiveIndex: 0, Total: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"bar#1","run_id":"run-1","phase":"narrating","active_index":0,"total":2,"narrating":false}`, string(out))
}
