package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

// Writer is the terminal stage of the ingestion pipeline.
type Writer interface {
	Write(ctx context.Context, docs []rag.Document) error
}

// DefaultEmbedBatchSize bounds the number of texts sent per embedding call.
const DefaultEmbedBatchSize = 32

// StoreWriter embeds chunks and adds them to a vector store. Before the
// first chunk of a source is stored, the chunks already stored for that
// source are deleted, so a file that shrank leaves no stale tail behind.
type StoreWriter struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	batchSize int
	logger    *zap.Logger
}

// NewStoreWriter creates a writer. A batchSize below one uses
// DefaultEmbedBatchSize.
func NewStoreWriter(embedder rag.Embedder, store rag.VectorStore, batchSize int, logger *zap.Logger) *StoreWriter {
	if batchSize < 1 {
		batchSize = DefaultEmbedBatchSize
	}
	return &StoreWriter{embedder: embedder, store: store, batchSize: batchSize, logger: logger}
}

// Write embeds docs batch by batch and stores each batch as it completes.
func (w *StoreWriter) Write(ctx context.Context, docs []rag.Document) error {
	cleared := map[string]bool{}
	for start := 0; start < len(docs); start += w.batchSize {
		end := start + w.batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		vectors, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", start, end, len(vectors), len(batch))
		}

		records := make([]rag.Record, len(batch))
		for i, d := range batch {
			records[i] = rag.Record{Document: d, Embedding: vectors[i]}
			source := d.Source()
			if source == "" || cleared[source] {
				continue
			}
			if err := w.store.DeleteBySource(ctx, source); err != nil {
				return fmt.Errorf("clear source %s: %w", source, err)
			}
			cleared[source] = true
		}
		if err := w.store.Add(ctx, records); err != nil {
			return fmt.Errorf("store batch %d-%d: %w", start, end, err)
		}
	}

	w.logger.Info("Wrote chunks to vector store", zap.Int("count", len(docs)))
	return nil
}

// JSONWriter pretty-prints documents to an io.Writer, framed by banner lines.
type JSONWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONWriter creates a console writer.
func NewJSONWriter(out io.Writer) *JSONWriter {
	return &JSONWriter{out: out}
}

func (w *JSONWriter) Write(_ context.Context, docs []rag.Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = fmt.Fprintf(w.out, "======= Writing JSON Console Document ========\n%s\n==============================================\n", data)
	return err
}
