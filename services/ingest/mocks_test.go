package ingest

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/upb/rag-chat/internal/rag"
)

// MockEmbedder is a mock implementation of rag.Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	switch v := args.Get(0).(type) {
	case func(context.Context, []string) [][]float32:
		return v(ctx, texts), args.Error(1)
	case [][]float32:
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockVectorStore is a mock implementation of rag.VectorStore
type MockVectorStore struct {
	mock.Mock
	mu    sync.Mutex
	added []rag.Record
}

func (m *MockVectorStore) Add(ctx context.Context, records []rag.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	args := m.Called(ctx, records)
	m.added = append(m.added, records...)
	return args.Error(0)
}

func (m *MockVectorStore) Search(ctx context.Context, req rag.SearchRequest) ([]rag.Document, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.([]rag.Document), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockVectorStore) Delete(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockVectorStore) DeleteBySource(ctx context.Context, source string) error {
	args := m.Called(ctx, source)
	return args.Error(0)
}

func (m *MockVectorStore) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockVectorStore) Added() []rag.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.added
}

// MockChatModel is a mock implementation of rag.ChatModel
type MockChatModel struct {
	mock.Mock
}

func (m *MockChatModel) Generate(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (*rag.Generation, error) {
	args := m.Called(ctx, messages, opts)
	if v := args.Get(0); v != nil {
		return v.(*rag.Generation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockChatModel) Stream(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (<-chan rag.StreamChunk, error) {
	args := m.Called(ctx, messages, opts)
	if v := args.Get(0); v != nil {
		return v.(<-chan rag.StreamChunk), args.Error(1)
	}
	return nil, args.Error(1)
}

// staticSource is a DocumentSource over a fixed slice.
type staticSource struct {
	docs []rag.Document
	err  error
}

func (s staticSource) Load(context.Context) ([]rag.Document, error) {
	return s.docs, s.err
}
