package chat

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/models"
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
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockVectorStore is a mock implementation of rag.VectorStore
type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) Add(ctx context.Context, records []rag.Record) error {
	args := m.Called(ctx, records)
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

// fakeModel is a scriptable rag.ChatModel that records the messages it was
// sent.
type fakeModel struct {
	mu       sync.Mutex
	messages [][]rag.Message
	options  []rag.ChatOptions

	generate func(ctx context.Context, messages []rag.Message) (*rag.Generation, error)
	stream   func(ctx context.Context, messages []rag.Message) (<-chan rag.StreamChunk, error)
}

func (f *fakeModel) record(messages []rag.Message, opts rag.ChatOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, messages)
	f.options = append(f.options, opts)
}

func (f *fakeModel) lastMessages() []rag.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return nil
	}
	return f.messages[len(f.messages)-1]
}

func (f *fakeModel) lastOptions() rag.ChatOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.options[len(f.options)-1]
}

func (f *fakeModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeModel) Generate(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (*rag.Generation, error) {
	f.record(messages, opts)
	return f.generate(ctx, messages)
}

func (f *fakeModel) Stream(ctx context.Context, messages []rag.Message, opts rag.ChatOptions) (<-chan rag.StreamChunk, error) {
	f.record(messages, opts)
	return f.stream(ctx, messages)
}

// fragments returns a stream function emitting parts then closing.
func fragments(parts ...string) func(context.Context, []rag.Message) (<-chan rag.StreamChunk, error) {
	return func(ctx context.Context, _ []rag.Message) (<-chan rag.StreamChunk, error) {
		ch := make(chan rag.StreamChunk)
		go func() {
			defer close(ch)
			for _, p := range parts {
				select {
				case ch <- rag.StreamChunk{Content: p}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

// endless emits "x" until the context is cancelled.
func endless(ctx context.Context, _ []rag.Message) (<-chan rag.StreamChunk, error) {
	ch := make(chan rag.StreamChunk)
	go func() {
		defer close(ch)
		for {
			select {
			case ch <- rag.StreamChunk{Content: "x"}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// recordingRecorder collects exchanges.
type recordingRecorder struct {
	mu        sync.Mutex
	exchanges []*models.Exchange
	done      chan struct{}
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{done: make(chan struct{}, 16)}
}

func (r *recordingRecorder) Record(_ context.Context, exchange *models.Exchange) {
	r.mu.Lock()
	r.exchanges = append(r.exchanges, exchange)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recordingRecorder) all() []*models.Exchange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Exchange(nil), r.exchanges...)
}
