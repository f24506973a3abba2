// Package memory provides an in-process vector store with optional JSON
// snapshots on disk.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/upb/rag-chat/internal/rag"
	"go.uber.org/zap"
)

const snapshotVersion = 1

type snapshot struct {
	Version int          `json:"version"`
	Records []rag.Record `json:"records"`
}

// VectorStore keeps records in a map and scores every record on each
// search.
type VectorStore struct {
	mu      sync.RWMutex
	records map[string]rag.Record
	logger  *zap.Logger
}

// NewVectorStore creates an empty store.
func NewVectorStore(logger *zap.Logger) *VectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorStore{
		records: make(map[string]rag.Record),
		logger:  logger,
	}
}

// Add inserts or replaces records by id.
func (s *VectorStore) Add(_ context.Context, records []rag.Record) error {
	for _, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record without id")
		}
		if len(rec.Embedding) == 0 {
			return fmt.Errorf("record %s has no embedding", rec.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		stored := rag.Record{
			Document:  rec.Document.Clone(),
			Embedding: append([]float32(nil), rec.Embedding...),
		}
		stored.Score = 0
		s.records[rec.ID] = stored
	}
	return nil
}

// Search scores every record against the query vector.
func (s *VectorStore) Search(_ context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	s.mu.RLock()
	found := make([]rag.Document, 0)
	for _, rec := range s.records {
		if !req.Filter.Matches(rec.Metadata) {
			continue
		}
		score := rag.CosineSimilarity(req.Vector, rec.Embedding)
		if score < req.Threshold {
			continue
		}
		doc := rec.Document.Clone()
		doc.Score = score
		found = append(found, doc)
	}
	s.mu.RUnlock()

	return rag.SelectTop(found, req.TopK, req.Threshold), nil
}

// Delete removes records by id. Unknown ids are ignored.
func (s *VectorStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// DeleteBySource removes every record whose source metadata equals source.
func (s *VectorStore) DeleteBySource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, rec := range s.records {
		if rec.Source() == source {
			delete(s.records, id)
			removed++
		}
	}
	s.logger.Debug("documents deleted", zap.String("source", source), zap.Int("count", removed))
	return nil
}

// Count returns the number of stored records.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Save writes the store to path as JSON. The file is replaced atomically.
func (s *VectorStore) Save(path string) error {
	s.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Records: make([]rag.Record, 0, len(s.records))}
	for _, rec := range s.records {
		snap.Records = append(snap.Records, rec)
	}
	s.mu.RUnlock()

	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	s.logger.Info("vector store saved", zap.String("path", path), zap.Int("records", len(snap.Records)))
	return nil
}

// Load replaces the store contents with the snapshot at path. A missing
// file leaves the store empty and is not an error.
func (s *VectorStore) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("no vector store snapshot", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("reading snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot %s: unsupported version %d", path, snap.Version)
	}

	records := make(map[string]rag.Record, len(snap.Records))
	for _, rec := range snap.Records {
		records[rec.ID] = rec
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	s.logger.Info("vector store loaded", zap.String("path", path), zap.Int("records", len(records)))
	return nil
}
