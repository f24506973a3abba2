package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
)

// DefaultEmbeddingCacheSize bounds the number of cached vectors.
const DefaultEmbeddingCacheSize = 1024

// CachedEmbedder memoizes vectors by text in an LRU cache. Vectors handed
// out are copies, so callers may mutate them freely.
type CachedEmbedder struct {
	next    rag.Embedder
	scope   string
	cache   *lru.Cache[string, []float32]
	metrics observability.Metrics
}

// NewCachedEmbedder wraps next. scope namespaces the keys, typically with
// the embedding model name, so switching models never serves stale vectors.
func NewCachedEmbedder(next rag.Embedder, scope string, size int, metrics observability.Metrics) (*CachedEmbedder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache size must be greater than zero")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &CachedEmbedder{next: next, scope: scope, cache: cache, metrics: metrics}, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Embed returns the cached vector for text or computes it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vector, ok := c.cache.Get(key); ok {
		c.metrics.RecordEmbeddingCache(ctx, true)
		return cloneVector(vector), nil
	}
	c.metrics.RecordEmbeddingCache(ctx, false)

	vector, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vector) > 0 {
		c.cache.Add(key, cloneVector(vector))
	}
	return vector, nil
}

// EmbedBatch serves hits from the cache and embeds each distinct miss once.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	order := make([]string, 0)

	for i, text := range texts {
		if vector, ok := c.cache.Get(c.key(text)); ok {
			c.metrics.RecordEmbeddingCache(ctx, true)
			results[i] = cloneVector(vector)
			continue
		}
		c.metrics.RecordEmbeddingCache(ctx, false)
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}

	embedded, err := c.next.EmbedBatch(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(order) {
		return nil, fmt.Errorf("received %d embeddings for %d texts", len(embedded), len(order))
	}
	for i, text := range order {
		for _, idx := range missing[text] {
			results[idx] = cloneVector(embedded[i])
		}
		if len(embedded[i]) > 0 {
			c.cache.Add(c.key(text), cloneVector(embedded[i]))
		}
	}
	return results, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.scope + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
