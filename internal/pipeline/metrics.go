package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vv_files_processed_total",
		Help: "Processing runs by outcome (stored, error, deleted).",
	}, []string{"outcome"})
	processDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vv_process_duration_seconds",
		Help:    "Wall time of one processing run.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	})
	chunksStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vv_chunks_stored_total",
		Help: "Chunks committed to the vector store.",
	})
)
