// Package observability provides structured logging and metrics for the
// RAG chat service.
//
// This package implements:
//   - zap logger construction from LOG_LEVEL / LOG_FORMAT
//   - Prometheus metrics for requests, retrieval, streaming and ingestion
//   - A no-op metrics sink for tests and METRICS_ENABLED=false
package observability
