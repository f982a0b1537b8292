// Package metrics exposes the service counters on a private prometheus
// registry served at /metrics by the ingestion server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drilltrack"

// Ingestion request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeBadRequest  = "bad_request"
	OutcomeRunFailed   = "run_failed"
	OutcomePointFailed = "point_failed"
)

// Discovery results.
const (
	ResultSent     = "sent"
	ResultError    = "error"
	ResultAnswered = "answered"
	ResultLimited  = "limited"
)

// Spool results.
const (
	ResultProcessed = "processed"
	ResultFailed    = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	IngestionRequests *prometheus.CounterVec
	IngestionPoints   prometheus.Counter
	PersistDuration   prometheus.Histogram

	Announcements     *prometheus.CounterVec
	DiscoveryRequests *prometheus.CounterVec

	SpoolFiles *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "requests_total",
			Help:      "Data upload requests by outcome.",
		}, []string{"outcome"}),
		IngestionPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "points_total",
			Help:      "Survey points stored.",
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "persist_seconds",
			Help:      "Time to store one upload.",
			Buckets:   prometheus.DefBuckets,
		}),
		Announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "announcements_total",
			Help:      "Server announcements broadcast by result.",
		}, []string{"result"}),
		DiscoveryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "requests_total",
			Help:      "Client discovery requests by result.",
		}, []string{"result"}),
		SpoolFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "spool",
			Name:      "files_total",
			Help:      "Spooled upload files by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.IngestionRequests,
		m.IngestionPoints,
		m.PersistDuration,
		m.Announcements,
		m.DiscoveryRequests,
		m.SpoolFiles,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
