package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry exposes the service's Prometheus collectors. A nil *Telemetry
// is a valid no-op recorder, so components can take it optionally.
type Telemetry struct {
	queriesTotal      *prometheus.CounterVec
	generationsTotal  *prometheus.CounterVec
	generationLatency prometheus.Histogram
	rateLimitDenials  prometheus.Counter
	retrievalHits     prometheus.Histogram
}

// New registers the service collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		queriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_queries_total",
			Help: "Queries processed, labelled by outcome.",
		}, []string{"outcome"}),
		generationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docqa_generations_total",
			Help: "Per-chunk generation calls, labelled by status.",
		}, []string{"status"}),
		generationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_generation_latency_seconds",
			Help:    "Latency of single generation calls including retries.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		rateLimitDenials: factory.NewCounter(prometheus.CounterOpts{
			Name: "docqa_rate_limit_denials_total",
			Help: "Requests denied by the rate limiter.",
		}),
		retrievalHits: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docqa_retrieval_hits",
			Help:    "Number of chunks returned per retrieval.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
	}
}

// RecordQuery counts a finished query by coarse outcome
// (ok, rejected, rate_limited, no_results, error).
func (t *Telemetry) RecordQuery(outcome string) {
	if t == nil {
		return
	}
	t.queriesTotal.WithLabelValues(outcome).Inc()
}

// RecordGeneration counts one generation call and its latency.
func (t *Telemetry) RecordGeneration(success bool, latency time.Duration) {
	if t == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	t.generationsTotal.WithLabelValues(status).Inc()
	t.generationLatency.Observe(latency.Seconds())
}

// RecordRateLimitDenial counts one denied admission.
func (t *Telemetry) RecordRateLimitDenial() {
	if t == nil {
		return
	}
	t.rateLimitDenials.Inc()
}

// RecordRetrieval records how many chunks a search returned.
func (t *Telemetry) RecordRetrieval(hits int) {
	if t == nil {
		return
	}
	t.retrievalHits.Observe(float64(hits))
}
