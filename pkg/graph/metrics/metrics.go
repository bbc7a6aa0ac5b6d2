package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "system_goroutines",
		Help: "Number of goroutines",
	})

	// Loader metrics
	DocumentsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_documents_loaded_total",
			Help: "Total number of uploaded documents by format and status",
		},
		[]string{"format", "status"},
	)

	DocumentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concept_graph_document_bytes",
		Help:    "Size of uploaded documents",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	// Extraction metrics
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concept_graph_extraction_duration_seconds",
			Help:    "Time spent waiting for concept extraction",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"status"},
	)

	ExtractionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_extraction_errors_total",
			Help: "Total number of failed extractions by error kind",
		},
		[]string{"kind"},
	)

	CompletionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_completion_requests_total",
			Help: "Requests sent to the language model provider",
		},
		[]string{"provider", "status"},
	)

	// Graph metrics
	GraphNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concept_graph_nodes",
		Help:    "Number of nodes in built graphs",
		Buckets: []float64{1, 5, 10, 15, 25, 35, 50, 75, 100},
	})

	GraphEdges = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concept_graph_edges",
		Help:    "Number of edges in built graphs",
		Buckets: []float64{0, 5, 10, 25, 50, 100, 200},
	})

	DroppedRelationships = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concept_graph_dropped_relationships_total",
		Help: "Relationships dropped because an endpoint was unknown",
	})

	// Session metrics
	SessionLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concept_graph_session_lookups_total",
			Help: "Session store lookups by backend and result",
		},
		[]string{"backend", "result"},
	)
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
