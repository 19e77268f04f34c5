// Package metrics exposes coordinator Prometheus collectors.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chainfl"

// Metrics holds the coordinator collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	currentRound       prometheus.Gauge
	phase              *prometheus.GaugeVec
	submissions        *prometheus.CounterVec
	roundUpdates       prometheus.Histogram
	skippedUpdates     *prometheus.CounterVec
	aggregationSeconds prometheus.Histogram
	aggregationErrors  prometheus.Counter
	roundsPublished    prometheus.Counter
	ledgerWrites       *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		currentRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_round",
			Help:      "Round the coordinator is working on.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinator_phase",
			Help:      "1 for the coordinator's current phase, 0 otherwise.",
		}, []string{"phase"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Update submissions by outcome.",
		}, []string{"outcome"}),
		roundUpdates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "round_updates",
			Help:      "Updates aggregated per round.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		skippedUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_updates_total",
			Help:      "Ledger updates excluded from aggregation by reason.",
		}, []string{"reason"}),
		aggregationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_seconds",
			Help:      "Time spent aggregating a round.",
			Buckets:   prometheus.DefBuckets,
		}),
		aggregationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_errors_total",
			Help:      "Failed aggregation attempts.",
		}),
		roundsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_published_total",
			Help:      "Rounds whose global model was published.",
		}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_writes_total",
			Help:      "Ledger write attempts by method and result.",
		}, []string{"method", "result"}),
	}

	m.registry.MustRegister(
		m.currentRound,
		m.phase,
		m.submissions,
		m.roundUpdates,
		m.skippedUpdates,
		m.aggregationSeconds,
		m.aggregationErrors,
		m.roundsPublished,
		m.ledgerWrites,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// SetRound records the current round.
func (m *Metrics) SetRound(round uint64) {
	if m == nil {
		return
	}
	m.currentRound.Set(float64(round))
}

// SetPhase marks phase as current among all.
func (m *Metrics) SetPhase(phase string, all []string) {
	if m == nil {
		return
	}

	for _, p := range all {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.phase.WithLabelValues(p).Set(v)
	}
}

// Submission counts one submission outcome ("accepted" or a rejection reason).
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// Skipped counts an update excluded from aggregation.
func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skippedUpdates.WithLabelValues(reason).Inc()
}

// Aggregated records a successful aggregation.
func (m *Metrics) Aggregated(updates int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.roundUpdates.Observe(float64(updates))
	m.aggregationSeconds.Observe(elapsed.Seconds())
}

// AggregationFailed counts a failed attempt.
func (m *Metrics) AggregationFailed() {
	if m == nil {
		return
	}
	m.aggregationErrors.Inc()
}

// Published counts a published round.
func (m *Metrics) Published() {
	if m == nil {
		return
	}
	m.roundsPublished.Inc()
}

// LedgerWrite counts a ledger write by method and result.
func (m *Metrics) LedgerWrite(method string, err error) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	m.ledgerWrites.WithLabelValues(method, result).Inc()
}
