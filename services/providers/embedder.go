package providers

import (
	"context"
	"fmt"
)

// Embedder adapts an EmbeddingProvider bound to one model to rag.Embedder.
type Embedder struct {
	provider EmbeddingProvider
	model    string
}

// NewEmbedder binds provider to model.
func NewEmbedder(provider EmbeddingProvider, model string) *Embedder {
	return &Embedder{provider: provider, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text, in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.provider.Embeddings(ctx, e.model, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%s: expected %d embeddings, got %d", e.provider.Name(), len(texts), len(vectors))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%s: empty embedding at index %d", e.provider.Name(), i)
		}
	}
	return vectors, nil
}
