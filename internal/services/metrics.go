package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Context composition metrics
	ContextRequests       prometheus.Counter
	ContextRequestLatency prometheus.Histogram
	ContextBranchErrors   *prometheus.CounterVec

	// Response cache metrics
	CacheLookups *prometheus.CounterVec

	// Embedding provider metrics
	EmbeddingRequests prometheus.Counter
	EmbeddingErrors   *prometheus.CounterVec

	// Memory metrics
	MemoriesStored    *prometheus.CounterVec
	ExtractionJobsRun *prometheus.CounterVec
	RealtimeSearches  prometheus.Counter
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	return &Metrics{
		ContextRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatnil_context_requests_total",
			Help: "Total number of context composition requests",
		}),

		ContextRequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatnil_context_request_duration_seconds",
			Help:    "Context composition latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		ContextBranchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnil_context_branch_errors_total",
			Help: "Total number of context branch failures by branch",
		}, []string{"branch"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnil_response_cache_lookups_total",
			Help: "Total number of response cache lookups by outcome",
		}, []string{"outcome"}), // outcome: "hit", "miss", "bypass"

		EmbeddingRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatnil_embedding_requests_total",
			Help: "Total number of embedding API requests",
		}),

		EmbeddingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnil_embedding_errors_total",
			Help: "Total number of embedding API errors by type",
		}, []string{"error_type"}),

		MemoriesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnil_memories_stored_total",
			Help: "Total number of memory store attempts by outcome",
		}, []string{"outcome"}), // outcome: "stored", "duplicate", "error"

		ExtractionJobsRun: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chatnil_memory_extraction_jobs_total",
			Help: "Total number of memory extraction jobs by outcome",
		}, []string{"outcome"}),

		RealtimeSearches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chatnil_realtime_searches_total",
			Help: "Total number of real-time search fetches",
		}),
	}
}

// RecordContextRequest records a context composition request
func (m *Metrics) RecordContextRequest() {
	m.ContextRequests.Inc()
}

// RecordContextLatency records context composition latency
func (m *Metrics) RecordContextLatency(seconds float64) {
	m.ContextRequestLatency.Observe(seconds)
}

// RecordBranchError records a context branch failure
func (m *Metrics) RecordBranchError(branch string) {
	m.ContextBranchErrors.WithLabelValues(branch).Inc()
}

// RecordCacheLookup records a response cache lookup outcome
func (m *Metrics) RecordCacheLookup(outcome string) {
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// RecordEmbeddingRequest records an embedding API request
func (m *Metrics) RecordEmbeddingRequest() {
	m.EmbeddingRequests.Inc()
}

// RecordEmbeddingError records an embedding API error
func (m *Metrics) RecordEmbeddingError(errorType string) {
	m.EmbeddingErrors.WithLabelValues(errorType).Inc()
}

// RecordMemoryStored records a memory store attempt outcome
func (m *Metrics) RecordMemoryStored(outcome string) {
	m.MemoriesStored.WithLabelValues(outcome).Inc()
}

// RecordExtractionJob records an extraction job outcome
func (m *Metrics) RecordExtractionJob(outcome string) {
	m.ExtractionJobsRun.WithLabelValues(outcome).Inc()
}

// RecordRealtimeSearch records a real-time search fetch
func (m *Metrics) RecordRealtimeSearch() {
	m.RealtimeSearches.Inc()
}
