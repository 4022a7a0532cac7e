package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexBuildsTotal counts Build calls.
	// Labels: backend (chromem, qdrant), result (success, error)
	IndexBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medrag",
			Subsystem: "vectorstore",
			Name:      "index_builds_total",
			Help:      "Total number of per-run index builds",
		},
		[]string{"backend", "result"},
	)

	// IndexedChunks tracks how many chunks each run indexes.
	IndexedChunks = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "vectorstore",
			Name:      "indexed_chunks",
			Help:      "Number of chunks indexed per run",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	// RetrieveDuration tracks retrieval latency.
	RetrieveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medrag",
			Subsystem: "vectorstore",
			Name:      "retrieve_duration_seconds",
			Help:      "Duration of top-k retrieval in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "result"},
	)
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func observeBuild(backend string, chunks int, _ time.Duration, err error) {
	IndexBuildsTotal.WithLabelValues(backend, resultLabel(err)).Inc()
	if err == nil {
		IndexedChunks.Observe(float64(chunks))
	}
}

func observeRetrieve(backend string, d time.Duration, err error) {
	RetrieveDuration.WithLabelValues(backend, resultLabel(err)).Observe(d.Seconds())
}
