package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/repositories/memory"
	"github.com/upb/rag-chat/repositories/sqlite"
	"github.com/upb/rag-chat/services"
	"github.com/upb/rag-chat/services/chat"
	"go.uber.org/zap/zaptest"
)

// keywordEmbedder maps text onto a tiny fixed vocabulary so similarity is
// predictable.
type keywordEmbedder struct{}

var vocabulary = []string{"alien", "matrix", "dune"}

func (keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	vec := make([]float32, len(vocabulary)+1)
	for i, word := range vocabulary {
		vec[i] = float32(strings.Count(lower, word))
	}
	vec[len(vocabulary)] = 0.1
	return vec, nil
}

func (e keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

// echoModel answers with a fixed text and remembers the prompts it saw.
type echoModel struct {
	mu       sync.Mutex
	answer   string
	messages [][]rag.Message
}

func (m *echoModel) Generate(_ context.Context, messages []rag.Message, opts rag.ChatOptions) (*rag.Generation, error) {
	m.mu.Lock()
	m.messages = append(m.messages, messages)
	m.mu.Unlock()
	return &rag.Generation{ID: "gen-1", Model: opts.Model, Content: m.answer, FinishReason: "stop"}, nil
}

func (m *echoModel) Stream(_ context.Context, messages []rag.Message, _ rag.ChatOptions) (<-chan rag.StreamChunk, error) {
	m.mu.Lock()
	m.messages = append(m.messages, messages)
	m.mu.Unlock()
	ch := make(chan rag.StreamChunk, len(m.answer))
	for _, word := range strings.SplitAfter(m.answer, " ") {
		ch <- rag.StreamChunk{Content: word}
	}
	close(ch)
	return ch, nil
}

func (m *echoModel) lastUserMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.messages[len(m.messages)-1]
	return last[len(last)-1].Content
}

var movies = []rag.Document{
	{ID: "alien", Content: "Alien is a 1979 film directed by Ridley Scott.", Metadata: map[string]interface{}{"source": "alien.txt", "genre": "scifi"}},
	{ID: "matrix", Content: "The Matrix is a 1999 film directed by the Wachowskis.", Metadata: map[string]interface{}{"source": "matrix.txt", "genre": "scifi"}},
	{ID: "dune", Content: "Dune is a 2021 film directed by Denis Villeneuve.", Metadata: map[string]interface{}{"source": "dune.txt", "genre": "drama"}},
}

func newTestDependencies(t *testing.T, cfg *config.Config, model *echoModel) *Dependencies {
	t.Helper()
	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t),
		WithEmbedder(keywordEmbedder{}),
		WithChatModel(model),
	)
	require.NoError(t, err)
	return deps
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory backed wiring", func(t *testing.T) {
		ctx := context.Background()
		deps := newTestDependencies(t, testConfig(t), &echoModel{answer: "ok"})
		defer deps.Close(ctx)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.IsType(t, &memory.VectorStore{}, deps.VectorStore)
		assert.NotNil(t, deps.Memory)
		assert.NotNil(t, deps.Chat)
		assert.NotNil(t, deps.Ingest)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Prometheus)
		assert.False(t, deps.AuthMiddleware.Enabled())
		assert.ElementsMatch(t, []string{"openai"}, deps.ProviderRegistry.ListProviders())
	})

	t.Run("auth enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: "secret"}
		deps := newTestDependencies(t, cfg, &echoModel{})
		defer deps.Close(context.Background())

		assert.True(t, deps.AuthMiddleware.Enabled())
	})

	t.Run("database connection failure", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.VectorStore.Type = config.StorePostgres
		cfg.Database = config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "rag",
			Database: "rag",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t),
			WithEmbedder(keywordEmbedder{}), WithChatModel(&echoModel{}))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})
}

func TestIngestThenChat(t *testing.T) {
	ctx := context.Background()
	model := &echoModel{answer: "Ridley Scott directed Alien."}
	deps := newTestDependencies(t, testConfig(t), model)
	defer deps.Close(ctx)

	report, err := deps.Ingest.RunDocuments(ctx, movies)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, 3, report.Chunks)

	count, err := deps.VectorStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	resp, err := deps.Chat.RagCall(ctx, chat.ChatRequest{
		ConversationID: "c1",
		UserPrompt:     "Who directed Alien?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ridley Scott directed Alien.", resp.Generation.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Generation.Model)
	require.Len(t, resp.Documents, 1)
	assert.Contains(t, resp.Documents[0].Content, "Ridley Scott")
	assert.Contains(t, model.lastUserMessage(), "Query: Who directed Alien?")

	window, err := deps.Memory.Window(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "Who directed Alien?", window[0].Content)

	t.Run("filter excludes every match", func(t *testing.T) {
		_, err := deps.Chat.RagCall(ctx, chat.ChatRequest{
			ConversationID:   "c2",
			UserPrompt:       "Tell me about Alien",
			FilterExpression: "genre == 'drama'",
		})
		assert.True(t, services.IsEmptyContextError(err))
	})

	t.Run("stream", func(t *testing.T) {
		stream, err := deps.Chat.RagStream(ctx, chat.ChatRequest{
			ConversationID: "c3",
			UserPrompt:     "What is Dune?",
		})
		require.NoError(t, err)

		var sb strings.Builder
		for chunk := range stream.Chunks {
			require.NoError(t, chunk.Err)
			sb.WriteString(chunk.Content)
		}
		assert.Equal(t, "Ridley Scott directed Alien.", sb.String())
		require.Len(t, stream.Documents, 1)
		assert.Equal(t, "drama", stream.Documents[0].Metadata["genre"])

		assert.Eventually(t, func() bool {
			w, _ := deps.Memory.Window(ctx, "c3")
			return len(w) == 2
		}, time.Second, 10*time.Millisecond)
	})

	assert.Eventually(t, func() bool {
		return deps.Audit.GetStats().Processed >= 3
	}, time.Second, 10*time.Millisecond)
}

func TestIngestFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, d := range movies {
		require.NoError(t, os.WriteFile(filepath.Join(dir, d.Metadata["source"].(string)), []byte(d.Content), 0o644))
	}

	cfg := testConfig(t)
	cfg.Ingest.Pattern = filepath.Join(dir, "*.txt")
	deps := newTestDependencies(t, cfg, &echoModel{})
	defer deps.Close(ctx)

	report, err := deps.Ingest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)

	require.NoError(t, deps.VectorStore.DeleteBySource(ctx, filepath.ToSlash(filepath.Join(dir, "dune.txt"))))
	count, err := deps.VectorStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NotNil(t, deps.NewWatcher())
}

func TestSnapshotPersistence(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.VectorStore.SnapshotPath = filepath.Join(t.TempDir(), "store.json")

	first := newTestDependencies(t, cfg, &echoModel{})
	_, err := first.Ingest.RunDocuments(ctx, movies)
	require.NoError(t, err)
	require.NoError(t, first.Close(ctx))
	assert.FileExists(t, cfg.VectorStore.SnapshotPath)

	second := newTestDependencies(t, cfg, &echoModel{})
	defer second.Close(ctx)
	count, err := second.VectorStore.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLiteVectorStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.VectorStore.Type = config.StoreSQLite
	cfg.VectorStore.SQLitePath = filepath.Join(t.TempDir(), "rag.db")

	deps := newTestDependencies(t, cfg, &echoModel{answer: "Denis Villeneuve."})
	defer deps.Close(ctx)
	assert.IsType(t, &sqlite.VectorStore{}, deps.VectorStore)

	_, err := deps.Ingest.RunDocuments(ctx, movies)
	require.NoError(t, err)

	resp, err := deps.Chat.RagCall(ctx, chat.ChatRequest{ConversationID: "c", UserPrompt: "Who directed Dune?"})
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	assert.Contains(t, resp.Documents[0].Content, "Villeneuve")
}

func TestNewProviderRegistry(t *testing.T) {
	t.Run("only selected providers are built", func(t *testing.T) {
		cfg := testConfig(t)
		registry, err := NewProviderRegistry(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"openai"}, registry.ListProviders())
	})

	t.Run("split chat and embedding providers", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.EmbeddingProvider = config.ProviderOllama
		registry, err := NewProviderRegistry(cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"ollama", "openai"}, registry.ListProviders())

		embeddings, err := registry.GetEmbeddingProvider("ollama")
		require.NoError(t, err)
		assert.Equal(t, "ollama", embeddings.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Providers.ChatProvider = "bedrock"
		_, err := NewProviderRegistry(cfg)
		assert.Error(t, err)
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Providers: config.ProvidersConfig{
			ChatProvider:      config.ProviderOpenAI,
			EmbeddingProvider: config.ProviderOpenAI,
			OpenAI: config.OpenAIConfig{
				APIKey:     "test-key",
				BaseURL:    "http://127.0.0.1:1",
				Timeout:    time.Second,
				MaxRetries: 0,
			},
			Ollama: config.OllamaConfig{BaseURL: "http://127.0.0.1:1"},
		},
		RAG: config.RAGConfig{
			ChunkSize:           200,
			ChunkOverlap:        100,
			TopK:                3,
			SimilarityThreshold: 0.9,
			MemoryWindow:        10,
			StreamBuffer:        4,
			ChatModel:           "gpt-4o-mini",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingCacheSize:  16,
		},
		VectorStore: config.VectorStoreConfig{Type: config.StoreMemory, Dimension: 4},
		Memory:      config.MemoryConfig{Type: config.StoreMemory},
		Ingest: config.IngestConfig{
			Pattern:      t.TempDir(),
			Debounce:     50 * time.Millisecond,
			KeywordCount: 4,
			BatchSize:    8,
		},
		Audit: config.AuditConfig{Enabled: true, BufferSize: 16, WorkerCount: 1},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}
