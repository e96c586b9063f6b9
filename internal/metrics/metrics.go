// Package metrics holds the Prometheus instruments of the search engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts finished searches by strategy and final state.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusql_searches_total",
			Help: "Total number of finished searches",
		},
		[]string{"strategy", "state"},
	)
	// SearchesRunning is the number of searches currently executing.
	SearchesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corpusql_searches_running",
			Help: "Number of searches currently executing",
		},
	)
	// PhaseDuration is the time spent in each pipeline phase.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpusql_phase_duration_seconds",
			Help:    "Search pipeline phase duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	// MatchesTotal counts durable matches produced by finished searches.
	MatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corpusql_matches_total",
			Help: "Total number of matches kept by finished searches",
		},
	)
	// FilteredTotal counts rows removed by post-match filters.
	FilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpusql_filtered_matches_total",
			Help: "Total number of matches removed by post-match filters",
		},
		[]string{"filter"},
	)
)
