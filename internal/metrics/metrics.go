package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Geocode lookup outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeRejected = "rejected" // short-circuited by the breaker
)

// Submission results.
const (
	SubmitAccepted       = "accepted"
	SubmitIgnoredBlank   = "ignored_blank"
	SubmitIgnoredPending = "ignored_pending"
)

// Metrics groups the collectors used by the geocoder and the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	lookups        *prometheus.CounterVec
	lookupDuration prometheus.Histogram
	submissions    *prometheus.CounterVec
	staleResults   prometheus.Counter
	sessions       prometheus.Gauge
}

// New registers the collectors (plus the Go and process collectors) on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapchat",
			Name:      "geocode_lookups_total",
			Help:      "Geocoding lookups by outcome.",
		}, []string{"outcome"}),
		lookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mapchat",
			Name:      "geocode_lookup_duration_seconds",
			Help:      "Latency of outbound geocoding requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mapchat",
			Name:      "submissions_total",
			Help:      "User submissions by result.",
		}, []string{"result"}),
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mapchat",
			Name:      "stale_results_total",
			Help:      "Lookup results discarded because the conversation was reset.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mapchat",
			Name:      "sessions_active",
			Help:      "Conversations currently held in memory.",
		}),
	}
	reg.MustRegister(
		m.lookups, m.lookupDuration, m.submissions, m.staleResults, m.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveLookup(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
	if outcome != OutcomeRejected {
		m.lookupDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) Submission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) StaleResult() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}
