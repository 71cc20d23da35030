package updater

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beatline_updater_runs_total",
		Help: "Update runs by result.",
	}, []string{"result"})
	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beatline_updater_run_duration_seconds",
		Help:    "Wall time of a single set update run.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	coalescedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_updater_coalesced_requests_total",
		Help: "Queue requests folded into a pending follow-up run.",
	})
	beatmapsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beatline_updater_beatmaps_processed_total",
		Help: "Beatmaps whose derived metadata was recomputed.",
	})
	inFlightRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beatline_updater_sets_in_flight",
		Help: "Sets with a running or pending update.",
	})
)
