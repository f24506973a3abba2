package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

// Transformer is a pipeline stage that rewrites or annotates documents.
type Transformer interface {
	Transform(ctx context.Context, docs []rag.Document) ([]rag.Document, error)
}

// DefaultKeywordCount is the number of keywords requested per chunk.
const DefaultKeywordCount = 4

const keywordsTemplate = `%s. Give %d unique keywords for this
document. Format as comma separated. Keywords:`

// KeywordEnricher asks the chat model for a handful of keywords per chunk
// and stores them under the excerpt_keywords metadata key.
type KeywordEnricher struct {
	model  rag.ChatModel
	count  int
	opts   rag.ChatOptions
	logger *zap.Logger
}

// NewKeywordEnricher creates an enricher. A count below one uses
// DefaultKeywordCount.
func NewKeywordEnricher(model rag.ChatModel, count int, opts rag.ChatOptions, logger *zap.Logger) *KeywordEnricher {
	if count < 1 {
		count = DefaultKeywordCount
	}
	return &KeywordEnricher{model: model, count: count, opts: opts, logger: logger}
}

// Transform annotates a copy of every document.
func (e *KeywordEnricher) Transform(ctx context.Context, docs []rag.Document) ([]rag.Document, error) {
	out := make([]rag.Document, 0, len(docs))
	for _, doc := range docs {
		prompt := fmt.Sprintf(keywordsTemplate, doc.Content, e.count)
		gen, err := e.model.Generate(ctx, []rag.Message{rag.NewMessage(rag.RoleUser, prompt)}, e.opts)
		if err != nil {
			return nil, fmt.Errorf("extract keywords for %s: %w", doc.ID, err)
		}

		enriched := doc.Clone()
		if enriched.Metadata == nil {
			enriched.Metadata = make(map[string]interface{}, 1)
		}
		enriched.Metadata[rag.MetadataKeywords] = normalizeKeywords(gen.Content)
		out = append(out, enriched)
	}
	e.logger.Debug("Enriched documents with keywords", zap.Int("count", len(out)))
	return out, nil
}

func normalizeKeywords(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keywords = append(keywords, k)
		}
	}
	return strings.Join(keywords, ", ")
}
