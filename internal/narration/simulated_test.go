package narration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/testutil"
)

func TestSimulated_CompletesAfterWordDuration(t *testing.T) {
	clk := testutil.NewManualClock()
	s := narration.NewSimulated(clk)

	var got []narration.Result
	s.Speak(context.Background(), "three little words", func(r narration.Result) { got = append(got, r) })

	clk.Advance(3*narration.DefaultWordDuration - time.Millisecond)
	assert.Empty(t, got)

	clk.Advance(time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, narration.OutcomeCompleted, got[0].Outcome)
	assert.Equal(t, []string{"three little words"}, s.Spoken())
}

func TestSimulated_Cancel(t *testing.T) {
	clk := testutil.NewManualClock()
	s := narration.NewSimulated(clk)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan narration.Result, 2)
	s.Speak(ctx, "hello there", func(r narration.Result) { results <- r })
	cancel()

	r := <-results
	assert.Equal(t, narration.OutcomeCancelled, r.Outcome)

	clk.Advance(time.Minute)
	assert.Empty(t, results, "timer is stopped after cancellation")
	assert.Zero(t, clk.Pending())
}

func TestSimulated_Duration(t *testing.T) {
	s := &narration.Simulated{PerWord: 100 * time.Millisecond}
	assert.Equal(t, 300*time.Millisecond, s.Duration(" a  b c "))
	assert.Equal(t, time.Duration(0), s.Duration(""))
}
