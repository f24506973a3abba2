package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects application metrics.
type Metrics interface {
	RecordRequest(ctx context.Context, labels RequestLabels, duration time.Duration)
	RecordRetrieval(ctx context.Context, documents int)
	RecordStreamChunk(ctx context.Context)
	RecordIngestion(ctx context.Context, documents, chunks int)
	RecordEmbeddingCache(ctx context.Context, hit bool)
}

// RequestLabels contains metric dimensions.
type RequestLabels struct {
	Mode   string // call or stream
	Status string // ok or the error type
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(context.Context, RequestLabels, time.Duration) {}
func (NopMetrics) RecordRetrieval(context.Context, int)                        {}
func (NopMetrics) RecordStreamChunk(context.Context)                           {}
func (NopMetrics) RecordIngestion(context.Context, int, int)                   {}
func (NopMetrics) RecordEmbeddingCache(context.Context, bool)                  {}

// PrometheusMetrics implements Metrics on a private Prometheus registry.
type PrometheusMetrics struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	retrieved      prometheus.Histogram
	streamChunks   prometheus.Counter
	ingestedDocs   prometheus.Counter
	ingestedChunks prometheus.Counter
	cacheLookups   *prometheus.CounterVec
}

// NewPrometheusMetrics registers the RAG collectors plus the Go runtime and
// process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_requests_total",
			Help: "RAG chat requests by mode and outcome.",
		}, []string{"mode", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rag_request_duration_seconds",
			Help:    "End-to-end RAG request latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mode"}),
		retrieved: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rag_retrieved_documents",
			Help:    "Documents surviving threshold and topK per retrieval.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_stream_chunks_total",
			Help: "Fragments forwarded to streaming clients.",
		}),
		ingestedDocs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_ingested_documents_total",
			Help: "Source documents processed by ingestion.",
		}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rag_ingested_chunks_total",
			Help: "Chunks written to the vector store.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rag_embedding_cache_lookups_total",
			Help: "Embedding cache lookups by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.retrieved,
		m.streamChunks,
		m.ingestedDocs,
		m.ingestedChunks,
		m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Requests returns the request counter, labelled by mode and status.
func (m *PrometheusMetrics) Requests() *prometheus.CounterVec { return m.requests }

// StreamChunks returns the streamed fragment counter.
func (m *PrometheusMetrics) StreamChunks() prometheus.Counter { return m.streamChunks }

// CacheLookups returns the embedding cache counter, labelled by result.
func (m *PrometheusMetrics) CacheLookups() *prometheus.CounterVec { return m.cacheLookups }

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) RecordRequest(_ context.Context, labels RequestLabels, duration time.Duration) {
	m.requests.WithLabelValues(labels.Mode, labels.Status).Inc()
	m.duration.WithLabelValues(labels.Mode).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordRetrieval(_ context.Context, documents int) {
	m.retrieved.Observe(float64(documents))
}

func (m *PrometheusMetrics) RecordStreamChunk(_ context.Context) {
	m.streamChunks.Inc()
}

func (m *PrometheusMetrics) RecordIngestion(_ context.Context, documents, chunks int) {
	m.ingestedDocs.Add(float64(documents))
	m.ingestedChunks.Add(float64(chunks))
}

func (m *PrometheusMetrics) RecordEmbeddingCache(_ context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
