// Package metrics counts files handled by each batch stage. Metrics live
// on a private registry and are exported once per run in the node
// exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a single file
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	Registry = prometheus.NewRegistry()

	FilesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "ctpatch_files_total",
			Help: "Total number of files handled per stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	FileDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ctpatch_file_duration_seconds",
			Help:    "Time spent on a single file in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)
)

// Observe records one file. Skipped files do not contribute a duration.
func Observe(stage, outcome string, d time.Duration) {
	FilesTotal.WithLabelValues(stage, outcome).Inc()
	if outcome != OutcomeSkipped {
		FileDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// WriteTextfile writes every metric to path, replacing it atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
