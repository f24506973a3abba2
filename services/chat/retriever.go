// Package chat runs the retrieval-augmented chat pipeline: conversation
// memory, document retrieval, post-processing, context augmentation and
// generation.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/services"
	"go.uber.org/zap"
)

// Retrieval defaults.
const (
	DefaultTopK                = 3
	DefaultSimilarityThreshold = 0.3
)

// RetrievalQuery describes one similarity search. Zero TopK uses the
// retriever default; a nil Filter applies no metadata constraint.
type RetrievalQuery struct {
	Text      string
	TopK      int
	Threshold *float64
	Filter    *rag.Filter
}

// RetrieverConfig holds the retriever defaults.
type RetrieverConfig struct {
	TopK                int
	SimilarityThreshold float64
}

// Retriever embeds a query and searches the vector store. It never retries;
// retry policy belongs to the embedding and storage transports.
type Retriever struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	topK      int
	threshold float64
	metrics   observability.Metrics
	logger    *zap.Logger
}

// NewRetriever creates a retriever. A non-positive TopK uses DefaultTopK.
func NewRetriever(embedder rag.Embedder, store rag.VectorStore, cfg RetrieverConfig, metrics observability.Metrics, logger *zap.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Retriever{
		embedder:  embedder,
		store:     store,
		topK:      cfg.TopK,
		threshold: cfg.SimilarityThreshold,
		metrics:   metrics,
		logger:    logger,
	}
}

// TopK returns the default result limit.
func (r *Retriever) TopK() int { return r.topK }

// Threshold returns the default similarity floor.
func (r *Retriever) Threshold() float64 { return r.threshold }

// Retrieve returns at most TopK documents scoring at least the threshold,
// best first. No match is an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, q RetrievalQuery) ([]rag.Document, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, services.InvalidArgument("retrieval query cannot be empty")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.topK
	}
	threshold := r.threshold
	if q.Threshold != nil {
		threshold = *q.Threshold
	}

	vector, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, services.WrapRetrieval(services.ErrEmbeddingFailed.Message, err)
	}

	found, err := r.store.Search(ctx, rag.SearchRequest{
		Vector:    vector,
		TopK:      topK,
		Threshold: threshold,
		Filter:    q.Filter,
	})
	if errors.Is(err, rag.ErrInvalidFilter) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidFilter.Message, err).
			WithDetail("filter", q.Filter.String())
	}
	if err != nil {
		return nil, services.WrapRetrieval(services.ErrSearchFailed.Message, err).
			WithDetail("filter", q.Filter.String())
	}

	docs := rag.SelectTop(found, topK, threshold)
	r.metrics.RecordRetrieval(ctx, len(docs))
	r.logger.Debug("Retrieved documents",
		zap.Int("found", len(found)),
		zap.Int("kept", len(docs)),
		zap.Int("top_k", topK),
		zap.Float64("threshold", threshold),
		zap.String("filter", q.Filter.String()),
	)
	return docs, nil
}
