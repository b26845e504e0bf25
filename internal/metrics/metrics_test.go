package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/sequencer"
)

func TestHooks(t *testing.T) {
	m := New(false)
	h := m.Hooks()

	h.OnReveal("run-1", 0, item.Item{})
	h.OnReveal("run-1", 1, item.Item{})
	h.OnNarrationEnd("run-1", 0, narration.Result{Outcome: narration.OutcomeCompleted, Duration: 1500 * time.Millisecond})
	h.OnNarrationEnd("run-1", 1, narration.Failed(errors.New("boom")))
	h.OnNarrationEnd("run-1", 1, narration.Result{Outcome: narration.OutcomeSkipped, Reason: narration.ReasonNoText})
	h.OnComplete("run-1", 2)
	h.OnReset("run-2", sequencer.ResetRestart)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.revealed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resets.WithLabelValues(sequencer.ResetRestart)))
	assert.Equal(t, 3, testutil.CollectAndCount(m.durations))
}

func TestHandler(t *testing.T) {
	m := New(true)
	m.Hooks().OnComplete("run-1", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "narrator_runs_completed_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestGather_Expected(t *testing.T) {
	m := New(false)
	m.Hooks().OnReset("run-1", sequencer.ResetStop)

	expected := `
# HELP narrator_runs_reset_total Total number of runs abandoned before completing, by reason.
# TYPE narrator_runs_reset_total counter
narrator_runs_reset_total{reason="stop"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "narrator_runs_reset_total"))
}
