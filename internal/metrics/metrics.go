// Package metrics exposes Prometheus instrumentation for the drain and ingest
// paths.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/mergemint/internal/domain/model"
)

const namespace = "mergemint"

// Metrics owns a private registry so tests can create independent instances.
type Metrics struct {
	registry         *prometheus.Registry
	drainOutcomes    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	infraErrors      prometheus.Counter
	ingestedPRs      *prometheus.CounterVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		drainOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_outcomes_total",
			Help:      "Drain invocations by outcome.",
		}, []string{"outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent waiting on the evaluation endpoint.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 15, 20, 25, 30},
		}, []string{"outcome"}),
		infraErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_infrastructure_errors_total",
			Help:      "Drain invocations aborted before resolving the backlog.",
		}),
		ingestedPRs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_prs_total",
			Help:      "Merged pull requests newly stored by the ingest service.",
		}, []string{"repo"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.drainOutcomes,
		m.dispatchDuration,
		m.infraErrors,
		m.ingestedPRs,
	)

	// Pre-create every outcome series so dashboards see zeros.
	for _, o := range model.AllOutcomes {
		m.drainOutcomes.WithLabelValues(string(o))
	}

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOutcome counts one drain invocation.
func (m *Metrics) ObserveOutcome(outcome model.Outcome) {
	m.drainOutcomes.WithLabelValues(string(outcome)).Inc()
}

// ObserveDispatch records how long a dispatch took.
func (m *Metrics) ObserveDispatch(outcome model.Outcome, elapsed time.Duration) {
	m.dispatchDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// InfrastructureError counts a drain that failed while fetching the backlog.
func (m *Metrics) InfrastructureError() {
	m.infraErrors.Inc()
}

// IngestedPRs adds n newly stored PRs for repo.
func (m *Metrics) IngestedPRs(repo string, n int) {
	if n <= 0 {
		return
	}
	m.ingestedPRs.WithLabelValues(repo).Add(float64(n))
}
