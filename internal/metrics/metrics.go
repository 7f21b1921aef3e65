// Package metrics exposes the Prometheus counters and gauges the sync
// coordinator and pipeline update as a run progresses.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts completed runs by terminal status.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtagger",
		Name:      "sync_runs_total",
		Help:      "Total sync runs by terminal status (success, error, cancelled).",
	}, []string{"status", "sync_type"})

	// ResourcesProcessedTotal counts resources seen across all runs.
	ResourcesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtagger",
		Name:      "resources_processed_total",
		Help:      "Resources streamed from the upstream asset API.",
	}, []string{"matched"})

	// UploadsTotal counts per-payer upload attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtagger",
		Name:      "uploads_total",
		Help:      "Per-payer presigned uploads by outcome (success, skipped).",
	}, []string{"outcome"})

	// SyncDurationSeconds observes wall-clock duration of completed runs.
	SyncDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vtagger",
		Name:      "sync_duration_seconds",
		Help:      "Duration of a sync run from starting to terminal state.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"sync_type"})

	// ImportStatusPollsTotal counts import-status lookups by cache outcome.
	ImportStatusPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vtagger",
		Name:      "import_status_polls_total",
		Help:      "Import status polls by whether they hit the cache or upstream.",
	}, []string{"source"})

	// ActiveSyncGauge is 1 while a run is in flight, 0 otherwise.
	ActiveSyncGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vtagger",
		Name:      "sync_active",
		Help:      "1 while a sync run is in flight, 0 otherwise.",
	})
)
