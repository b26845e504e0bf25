// Package metrics exposes sequencer activity as Prometheus metrics.
//
// Metrics live on their own registry rather than the global default, so
// several hosts (tests, the HTTP server) can each own one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/sequencer"
)

// Metrics counts reveals, narrations and run endings.
type Metrics struct {
	registry *prometheus.Registry

	revealed  prometheus.Counter
	outcomes  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	completed prometheus.Counter
	resets    *prometheus.CounterVec
}

// New creates the metrics on a fresh registry. With withRuntime, Go runtime
// and process collectors are registered too.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		revealed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "narrator_items_revealed_total",
			Help: "Total number of items revealed.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrator_narrations_total",
			Help: "Total number of narrations that ended, by outcome.",
		}, []string{"outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "narrator_narration_duration_seconds",
			Help:    "Time from narration start to its end, by outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"outcome"}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "narrator_runs_completed_total",
			Help: "Total number of runs that revealed every item.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "narrator_runs_reset_total",
			Help: "Total number of runs abandoned before completing, by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(m.revealed, m.outcomes, m.durations, m.completed, m.resets)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns sequencer hooks that feed the metrics.
func (m *Metrics) Hooks() sequencer.Hooks {
	return sequencer.Hooks{
		OnReveal: func(string, int, item.Item) {
			m.revealed.Inc()
		},
		OnNarrationEnd: func(_ string, _ int, r narration.Result) {
			outcome := r.Outcome.String()
			m.outcomes.WithLabelValues(outcome).Inc()
			m.durations.WithLabelValues(outcome).Observe(r.Duration.Seconds())
		},
		OnComplete: func(string, int) {
			m.completed.Inc()
		},
		OnReset: func(_ string, reason string) {
			m.resets.WithLabelValues(reason).Inc()
		},
	}
}
