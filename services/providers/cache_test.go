package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-chat/internal/observability"
)

// countingEmbedder records every text it is asked to embed
type countingEmbedder struct {
	mu    sync.Mutex
	seen  []string
	fail  error
	batch int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.batch++
	c.seen = append(c.seen, texts...)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func TestCachedEmbedder_Embed(t *testing.T) {
	next := &countingEmbedder{}
	metrics := observability.NewPrometheusMetrics()
	cached, err := NewCachedEmbedder(next, "model-a", 8, metrics)
	require.NoError(t, err)

	first, err := cached.Embed(context.Background(), "hello")
	require.NoError(t, err)
	first[0] = 999

	second, err := cached.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 1}, second, "cached vectors are isolated from callers")

	assert.Equal(t, []string{"hello"}, next.seen)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups().WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups().WithLabelValues("miss")))
}

func TestCachedEmbedder_EmbedBatchDedupesMisses(t *testing.T) {
	next := &countingEmbedder{}
	cached, err := NewCachedEmbedder(next, "model-a", 8, nil)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "warm")
	require.NoError(t, err)

	vectors, err := cached.EmbedBatch(context.Background(), []string{"a", "warm", "bb", "a"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{1, 1}, {4, 1}, {2, 1}, {1, 1}}, vectors)
	assert.Equal(t, []string{"warm", "a", "bb"}, next.seen)
	assert.Equal(t, 3, cached.Len())

	vectors[0][0] = 42
	assert.Equal(t, float32(1), vectors[3][0], "duplicate texts get independent copies")
}

func TestCachedEmbedder_AllHitsSkipBackend(t *testing.T) {
	next := &countingEmbedder{}
	cached, err := NewCachedEmbedder(next, "m", 8, nil)
	require.NoError(t, err)

	_, err = cached.EmbedBatch(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	_, err = cached.EmbedBatch(context.Background(), []string{"y", "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.batch)
}

func TestCachedEmbedder_ScopeAndEviction(t *testing.T) {
	next := &countingEmbedder{}
	a, err := NewCachedEmbedder(next, "model-a", 1, nil)
	require.NoError(t, err)

	_, _ = a.Embed(context.Background(), "one")
	_, _ = a.Embed(context.Background(), "two")
	_, _ = a.Embed(context.Background(), "one")
	assert.Equal(t, []string{"one", "two", "one"}, next.seen)
	assert.Equal(t, 1, a.Len())

	assert.NotEqual(t, a.key("one"), (&CachedEmbedder{scope: "model-b"}).key("one"))
}

func TestCachedEmbedder_Errors(t *testing.T) {
	_, err := NewCachedEmbedder(&countingEmbedder{}, "m", 0, nil)
	assert.Error(t, err)

	boom := errors.New("boom")
	cached, err := NewCachedEmbedder(&countingEmbedder{fail: boom}, "m", 4, nil)
	require.NoError(t, err)

	_, err = cached.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	_, err = cached.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cached.Len())
}
