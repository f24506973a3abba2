// Package sqlite stores embedded documents in a single SQLite file.
// Embeddings are kept as JSON and scored in Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		source TEXT,
		embedding TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source);
`

// VectorStore is a SQLite backed rag.VectorStore.
type VectorStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// NewVectorStore opens (or creates) the database at path.
func NewVectorStore(path string, logger *zap.Logger) (*VectorStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite vector store opened", zap.String("path", path))
	return &VectorStore{db: db, path: path, logger: logger}, nil
}

// Close closes the database connection.
func (s *VectorStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *VectorStore) Path() string {
	return s.path
}

// Ping checks the database connection.
func (s *VectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Add upserts records in one transaction.
func (s *VectorStore) Add(ctx context.Context, records []rag.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (id, content, metadata, source, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			source = excluded.source,
			embedding = excluded.embedding,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record without id")
		}
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("record %s: invalid metadata: %w", rec.ID, err)
		}
		if rec.Metadata == nil {
			metadata = []byte("{}")
		}
		embedding, err := json.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("record %s: encoding embedding: %w", rec.ID, err)
		}

		var source sql.NullString
		if src := rec.Source(); src != "" {
			source = sql.NullString{String: src, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Content, string(metadata), source, string(embedding)); err != nil {
			return fmt.Errorf("upserting document %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing documents: %w", err)
	}
	s.logger.Debug("documents upserted", zap.Int("count", len(records)))
	return nil
}

// Search loads every row, scores it against the query vector and applies
// the metadata filter in Go.
func (s *VectorStore) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	found := make([]rag.Document, 0)
	for rows.Next() {
		var (
			doc                 rag.Document
			metadata, embedding string
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &metadata, &embedding); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("document %s: invalid metadata: %w", doc.ID, err)
		}
		if !req.Filter.Matches(doc.Metadata) {
			continue
		}
		var vector []float32
		if err := json.Unmarshal([]byte(embedding), &vector); err != nil {
			return nil, fmt.Errorf("document %s: invalid embedding: %w", doc.ID, err)
		}
		doc.Score = rag.CosineSimilarity(req.Vector, vector)
		if doc.Score >= req.Threshold {
			found = append(found, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return rag.SelectTop(found, req.TopK, req.Threshold), nil
}

// Delete removes documents by id.
func (s *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	return nil
}

// DeleteBySource removes every chunk ingested from source.
func (s *VectorStore) DeleteBySource(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE source = ?`, source); err != nil {
		return fmt.Errorf("deleting documents of %s: %w", source, err)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}
