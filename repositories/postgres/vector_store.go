package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/repositories"
	"go.uber.org/zap"
)

// VectorStore keeps embedded documents in a pgvector column and scores them
// with cosine distance inside the database.
type VectorStore struct {
	db        *DB
	tm        repositories.TransactionManager
	dimension int
	logger    *zap.Logger
}

// NewVectorStore creates a pgvector backed store. dimension <= 0 disables
// the width check on Add.
func NewVectorStore(db *DB, dimension int, logger *zap.Logger) *VectorStore {
	return &VectorStore{
		db:        db,
		tm:        NewTransactionManager(db, logger),
		dimension: dimension,
		logger:    logger,
	}
}

// Add upserts records in a single transaction
func (s *VectorStore) Add(ctx context.Context, records []rag.Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record without id")
		}
		if s.dimension > 0 && len(rec.Embedding) != s.dimension {
			return fmt.Errorf("record %s: embedding has %d dimensions, want %d", rec.ID, len(rec.Embedding), s.dimension)
		}
	}

	query := `
		INSERT INTO rag_documents (id, content, metadata, source, embedding)
		VALUES ($1, $2, $3, $4, $5::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			updated_at = CURRENT_TIMESTAMP
	`

	return s.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, s.db)
		for _, rec := range records {
			metadata, err := marshalMetadata(rec.Metadata)
			if err != nil {
				return fmt.Errorf("record %s: %w", rec.ID, err)
			}
			if _, err := executor.ExecContext(ctx, query,
				rec.ID, rec.Content, metadata, nullableSource(rec.Source()), formatVector(rec.Embedding)); err != nil {
				return fmt.Errorf("failed to upsert document %s: %w", rec.ID, err)
			}
		}
		s.logger.Debug("documents upserted", zap.Int("count", len(records)))
		return nil
	})
}

// Search returns the nearest documents above the threshold. The metadata
// filter is compiled into the WHERE clause.
func (s *VectorStore) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	where, filterArgs, err := req.Filter.SQL("metadata", 2)
	if err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, 3+len(filterArgs))
	args = append(args, formatVector(req.Vector), req.Threshold)
	args = append(args, filterArgs...)

	query := `
		SELECT id, content, metadata, 1 - (embedding <=> $1::vector) AS score
		FROM rag_documents
		WHERE 1 - (embedding <=> $1::vector) >= $2 AND ` + where + `
		ORDER BY score DESC, id ASC`
	if req.TopK > 0 {
		args = append(args, req.TopK)
		query += fmt.Sprintf("\n\t\tLIMIT $%d", len(args))
	}

	executor := GetExecutor(ctx, s.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	docs := make([]rag.Document, 0)
	for rows.Next() {
		var (
			doc      rag.Document
			metadata []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &doc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("document %s: invalid metadata: %w", doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

// Delete removes documents by id
func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	executor := GetExecutor(ctx, s.db)
	if _, err := executor.ExecContext(ctx, `DELETE FROM rag_documents WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// DeleteBySource removes every chunk ingested from source
func (s *VectorStore) DeleteBySource(ctx context.Context, source string) error {
	executor := GetExecutor(ctx, s.db)
	res, err := executor.ExecContext(ctx, `DELETE FROM rag_documents WHERE source = $1`, source)
	if err != nil {
		return fmt.Errorf("failed to delete documents of %s: %w", source, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		s.logger.Debug("documents deleted", zap.String("source", source), zap.Int64("count", n))
	}
	return nil
}

// Count returns the number of stored documents
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	executor := GetExecutor(ctx, s.db)
	if err := executor.QueryRowContext(ctx, `SELECT COUNT(*) FROM rag_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// formatVector renders v in the pgvector text format.
func formatVector(v []float32) string {
	var b strings.Builder
	b.Grow(len(v)*8 + 2)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func marshalMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	return data, nil
}

func nullableSource(source string) interface{} {
	if source == "" {
		return nil
	}
	return source
}
