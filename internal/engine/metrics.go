package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	traceBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_trace_builds_total",
		Help: "Trace requests by direction and result (found, not_found, error).",
	}, []string{"direction", "result"})

	traceAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traceline_trace_anomalies_total",
		Help: "Malformed rows recovered while building trace trees, by kind.",
	}, []string{"kind"})

	traceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceline_trace_build_duration_seconds",
		Help:    "Time spent fetching rows and building a trace tree.",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})

	traceNodes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "traceline_trace_nodes",
		Help:    "Number of nodes in built trace trees.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"direction"})
)
