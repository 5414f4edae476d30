// Package metrics defines the Prometheus instrumentation for document
// ingestion, retrieval and the HTTP surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	DocumentsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragmag",
			Name:      "documents_ingested_total",
			Help:      "Total number of documents indexed",
		},
		[]string{"operation", "status"},
	)

	DocumentPagesIngestedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragmag",
			Name:      "document_pages_ingested_total",
			Help:      "Total number of document pages indexed",
		},
	)

	ImagesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragmag",
			Name:      "images_deleted_total",
			Help:      "Total number of page images removed from storage",
		},
	)

	QueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragmag",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragmag",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)
)

var registered bool

// Register registers all metrics with the default registry. Must be called
// once from main before the HTTP server starts.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(DocumentsIngestedTotal)
	prometheus.MustRegister(DocumentPagesIngestedTotal)
	prometheus.MustRegister(ImagesDeletedTotal)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	registered = true
}
