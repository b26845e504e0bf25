package trace_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/narration/narrationtest"
	"github.com/roach88/narrator/internal/sequencer"
	"github.com/roach88/narrator/internal/testutil"
	"github.com/roach88/narrator/internal/trace"
)

func TestRecorder_TwoItemGolden(t *testing.T) {
	clk := testutil.NewManualClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := narration.NewGate(narrationtest.NewSpy(narrationtest.ModeComplete),
		narration.WithClock(clk), narration.WithLogger(logger))

	rec := trace.NewRecorder(clk)
	s := sequencer.New(gate,
		sequencer.WithClock(clk),
		sequencer.WithLogger(logger),
		sequencer.WithRunIDGenerator(sequencer.NewFixedGenerator("run-1")),
		sequencer.WithHooks(rec.Hooks("chart")),
	)

	s.Start(item.Sequence{
		item.New(map[string]any{"month": "Jan", "desktop": 186}, "A"),
		item.New(map[string]any{"month": "Feb", "desktop": 305}, ""),
	})
	testutil.RunUntilIdle(t, clk, s)

	out, err := rec.Snapshot("two_items").MarshalCanonical()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_items", out)
}

func TestRecorder_TimesFromFirstEvent(t *testing.T) {
	clk := testutil.NewManualClock()
	rec := trace.NewRecorder(clk)

	clk.Advance(time.Hour)
	rec.Record("say", "script", map[string]any{"text": "hello"})
	clk.Advance(1500 * time.Millisecond)
	rec.Record("wait", "script", nil)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, time.Duration(0), events[0].At)
	assert.Equal(t, 1500*time.Millisecond, events[1].At)
	assert.Equal(t, 2, events[1].Seq)
	assert.Equal(t, -1, events[0].Index)
}

func TestRecorder_FailureAndReset(t *testing.T) {
	clk := testutil.NewManualClock()
	rec := trace.NewRecorder(clk)
	h := rec.Hooks("table")

	h.OnNarrationEnd("run-1", 0, narration.Failed(errors.New("boom")))
	h.OnReset("run-1", sequencer.ResetRestart)

	out, err := rec.Snapshot("x").MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"events":[`+
		`{"at_ms":0,"duration_ms":0,"error":"boom","index":0,"outcome":"failed","run":"run-1","seq":1,"source":"table","type":"narration_end"},`+
		`{"at_ms":0,"reason":"restart","run":"run-1","seq":2,"source":"table","type":"reset"}`+
		`],"name":"x"}`, string(out))
}

func TestRecorder_Observe(t *testing.T) {
	clk := testutil.NewManualClock()
	rec := trace.NewRecorder(clk)

	var seen []trace.Event
	rec.Observe(func(e trace.Event) { seen = append(seen, e) })

	rec.Record(trace.TypeSay, "script", map[string]any{"text": "hi"})
	rec.Hooks("chart").OnComplete("run-1", 2)

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].Seq)
	assert.False(t, seen[0].Terminal())
	assert.True(t, seen[1].Terminal())

	out, err := seen[1].MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, `{"at_ms":0,"revealed":2,"run":"run-1","seq":2,"source":"chart","type":"complete"}`, string(out))
}
