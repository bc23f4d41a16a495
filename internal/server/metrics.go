package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments exposed on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	ScoreRequests    *prometheus.CounterVec
	ScoreDuration    prometheus.Histogram
	ScoredRecords    prometheus.Histogram
	ReferenceRecords prometheus.Gauge
	ReferenceReloads prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
}

// NewMetrics creates and registers all instruments on a private
// registry so multiple servers in one process never collide.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ScoreRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paraid_score_requests_total",
				Help: "Total scoring requests by outcome",
			},
			[]string{"status"},
		),

		ScoreDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paraid_score_duration_seconds",
				Help:    "Duration of one scoring call in seconds",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
		),

		ScoredRecords: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paraid_scored_records",
				Help:    "Reference rows scanned per scoring call",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000},
			},
		),

		ReferenceRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "paraid_reference_records",
				Help: "Rows in the currently loaded reference table",
			},
		),

		ReferenceReloads: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paraid_reference_reloads_total",
				Help: "Total atomic reference table reloads",
			},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paraid_cache_hits_total",
				Help: "Total result cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paraid_cache_misses_total",
				Help: "Total result cache misses",
			},
		),
	}

	m.registry.MustRegister(
		m.ScoreRequests,
		m.ScoreDuration,
		m.ScoredRecords,
		m.ReferenceRecords,
		m.ReferenceReloads,
		m.CacheHits,
		m.CacheMisses,
	)

	return m
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
