package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/internal/observability"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/middleware"
	"github.com/upb/rag-chat/repositories"
	"github.com/upb/rag-chat/repositories/memory"
	"github.com/upb/rag-chat/repositories/postgres"
	"github.com/upb/rag-chat/repositories/sqlite"
	"github.com/upb/rag-chat/services/audit"
	"github.com/upb/rag-chat/services/chat"
	"github.com/upb/rag-chat/services/ingest"
	convmemory "github.com/upb/rag-chat/services/memory"
	"github.com/upb/rag-chat/services/providers"
	"go.uber.org/zap"
)

const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics observability.Metrics
	// Prometheus is nil when metrics are disabled
	Prometheus *observability.PrometheusMetrics

	// Repository Factory, nil without a database
	RepoFactory  *postgres.RepositoryFactory
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Model access
	ProviderRegistry *providers.Registry
	Embedder         rag.Embedder
	ChatModel        rag.ChatModel

	// Storage
	VectorStore rag.VectorStore
	Memory      *convmemory.WindowMemory

	// Services
	Audit       *audit.Service
	Chat        *chat.Service
	Ingest      *ingest.Pipeline
	IngestFiles *ingest.FileSource

	// Auth
	AuthMiddleware *middleware.AuthMiddleware

	output  io.Writer
	closers []func(ctx context.Context) error
}

// Option customizes NewDependencies.
type Option func(*Dependencies)

// WithOutput sets where retrieved documents and ingested chunks are printed
// when printing is enabled. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(d *Dependencies) { d.output = w }
}

// WithMetrics replaces the metrics sink built from the configuration.
func WithMetrics(m observability.Metrics) Option {
	return func(d *Dependencies) { d.Metrics = m }
}

// WithChatModel bypasses the provider registry for generation.
func WithChatModel(m rag.ChatModel) Option {
	return func(d *Dependencies) { d.ChatModel = m }
}

// WithEmbedder bypasses the provider registry for embeddings. The embedding
// cache is still applied.
func WithEmbedder(e rag.Embedder) Option {
	return func(d *Dependencies) { d.Embedder = e }
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(deps)
	}

	fail := func(err error) (*Dependencies, error) {
		_ = deps.Close(context.Background())
		return nil, err
	}

	deps.initMetrics(cfg)

	// PostgreSQL is only opened when a component is backed by it
	if cfg.NeedsDatabase() {
		if err := deps.initDatabase(ctx, cfg); err != nil {
			return fail(fmt.Errorf("failed to initialize database: %w", err))
		}
	}

	if err := deps.initProviders(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize providers: %w", err))
	}

	if err := deps.initVectorStore(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize vector store: %w", err))
	}

	deps.initMemory(cfg)

	if err := deps.initAudit(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize audit: %w", err))
	}

	if err := deps.initChat(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize chat service: %w", err))
	}

	if err := deps.initIngest(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize ingestion: %w", err))
	}

	if err := deps.initAuth(cfg); err != nil {
		return fail(fmt.Errorf("failed to initialize auth: %w", err))
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("memory_store", cfg.Memory.Type),
		zap.String("chat_provider", cfg.Providers.ChatProvider),
		zap.String("embedding_provider", cfg.Providers.EmbeddingProvider))
	return deps, nil
}

func (d *Dependencies) initMetrics(cfg *config.Config) {
	if d.Metrics != nil {
		return
	}
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}
	d.Prometheus = observability.NewPrometheusMetrics()
	d.Metrics = d.Prometheus
}

// initDatabase initializes the PostgreSQL database connection and schema
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.Repositories = factory.NewRepositories()
	d.TxManager = factory.GetTransactionManager()
	d.closers = append(d.closers, func(context.Context) error { return factory.Close() })

	if err := factory.InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initProviders builds the provider registry and resolves the chat and
// embedding models from it
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry, err := NewProviderRegistry(cfg)
	if err != nil {
		return err
	}
	d.ProviderRegistry = registry

	if d.ChatModel == nil {
		provider, err := registry.GetProvider(cfg.Providers.ChatProvider)
		if err != nil {
			return fmt.Errorf("chat provider %s: %w", cfg.Providers.ChatProvider, err)
		}
		d.ChatModel = providers.NewChatModel(provider, d.Logger)
	}

	if d.Embedder == nil {
		embeddings, err := registry.GetEmbeddingProvider(cfg.Providers.EmbeddingProvider)
		if err != nil {
			return fmt.Errorf("embedding provider %s: %w", cfg.Providers.EmbeddingProvider, err)
		}
		d.Embedder = providers.NewEmbedder(embeddings, cfg.RAG.EmbeddingModel)
	}

	if cfg.RAG.EmbeddingCacheSize > 0 {
		scope := cfg.Providers.EmbeddingProvider + "/" + cfg.RAG.EmbeddingModel
		cached, err := providers.NewCachedEmbedder(d.Embedder, scope, cfg.RAG.EmbeddingCacheSize, d.Metrics)
		if err != nil {
			return fmt.Errorf("embedding cache: %w", err)
		}
		d.Embedder = cached
	}

	d.Logger.Info("providers initialized", zap.Strings("providers", registry.ListProviders()))
	return nil
}

func (d *Dependencies) initVectorStore(cfg *config.Config) error {
	switch cfg.VectorStore.Type {
	case config.StorePostgres:
		d.VectorStore = d.Repositories.Vectors

	case config.StoreSQLite:
		store, err := sqlite.NewVectorStore(cfg.VectorStore.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.VectorStore = store
		d.closers = append(d.closers, func(context.Context) error { return store.Close() })

	default:
		store := memory.NewVectorStore(d.Logger)
		if path := cfg.VectorStore.SnapshotPath; path != "" {
			if err := store.Load(path); err != nil {
				return fmt.Errorf("failed to load snapshot: %w", err)
			}
			d.closers = append(d.closers, func(context.Context) error {
				if err := store.Save(path); err != nil {
					return fmt.Errorf("failed to save snapshot: %w", err)
				}
				d.Logger.Info("vector store snapshot saved", zap.String("path", path))
				return nil
			})
		}
		d.VectorStore = store
	}
	return nil
}

func (d *Dependencies) initMemory(cfg *config.Config) {
	var store convmemory.Store = convmemory.NewInMemoryStore()
	if cfg.Memory.Type == config.StorePostgres {
		store = d.Repositories.Conversations
	}
	d.Memory = convmemory.NewWindowMemory(store, cfg.RAG.MemoryWindow, d.Logger)
}

// initAudit starts the exchange recorder. Exchanges are written to postgres
// when a database is open and logged otherwise.
func (d *Dependencies) initAudit(cfg *config.Config) error {
	if !cfg.Audit.Enabled {
		return nil
	}
	var repo repositories.ExchangeRepository
	if d.Repositories != nil {
		repo = d.Repositories.Exchanges
	}
	svc := audit.NewService(repo, d.Logger, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.WorkerCount,
	})
	if err := svc.Start(); err != nil {
		return err
	}
	d.Audit = svc
	d.closers = append(d.closers, func(context.Context) error { return svc.Stop(auditStopTimeout) })
	return nil
}

func (d *Dependencies) initChat(cfg *config.Config) error {
	retriever := chat.NewRetriever(d.Embedder, d.VectorStore, chat.RetrieverConfig{
		TopK:                cfg.RAG.TopK,
		SimilarityThreshold: cfg.RAG.SimilarityThreshold,
	}, d.Metrics, d.Logger)

	var postProcessor chat.PostProcessor
	if cfg.RAG.PrintResults {
		postProcessor = chat.NewPrintingPostProcessor(d.output)
	}

	orchestrator, err := chat.NewOrchestrator(chat.OrchestratorConfig{
		Memory:        d.Memory,
		Retriever:     retriever,
		PostProcessor: postProcessor,
		Augmenter:     chat.NewAugmenter(cfg.RAG.AllowEmptyContext),
		Model:         d.ChatModel,
		StreamBuffer:  cfg.RAG.StreamBuffer,
		Metrics:       d.Metrics,
		Logger:        d.Logger,
	})
	if err != nil {
		return err
	}

	var recorder chat.ExchangeRecorder
	if d.Audit != nil {
		recorder = d.Audit
	}

	d.Chat = chat.NewService(chat.ServiceConfig{
		Orchestrator: orchestrator,
		DefaultOptions: rag.ChatOptions{
			Model:       cfg.RAG.ChatModel,
			Temperature: rag.Float64(cfg.RAG.Temperature),
			MaxTokens:   cfg.RAG.MaxTokens,
		},
		Recorder: recorder,
		Metrics:  d.Metrics,
		Logger:   d.Logger,
	})
	return nil
}

func (d *Dependencies) initIngest(cfg *config.Config) error {
	splitter, err := ingest.NewTextSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return err
	}

	var transformers []ingest.Transformer
	if cfg.Ingest.Keywords {
		transformers = append(transformers, ingest.NewKeywordEnricher(d.ChatModel, cfg.Ingest.KeywordCount,
			rag.ChatOptions{Model: cfg.RAG.ChatModel, Temperature: rag.Float64(0)}, d.Logger))
	}

	writers := []ingest.Writer{ingest.NewStoreWriter(d.Embedder, d.VectorStore, cfg.Ingest.BatchSize, d.Logger)}
	if cfg.Ingest.PrintDocuments {
		writers = append(writers, ingest.NewJSONWriter(d.output))
	}

	d.IngestFiles = ingest.NewFileSource(cfg.Ingest.Pattern, nil, d.Logger)
	d.Ingest, err = ingest.NewPipeline(ingest.PipelineConfig{
		Source:       d.IngestFiles,
		Splitter:     splitter,
		Transformers: transformers,
		Writers:      writers,
		Metrics:      d.Metrics,
		Logger:       d.Logger,
	})
	return err
}

// NewWatcher returns a watcher that keeps the vector store in sync with the
// ingest pattern.
func (d *Dependencies) NewWatcher() *ingest.Watcher {
	return ingest.NewWatcher(d.IngestFiles, d.Ingest, d.VectorStore, d.Config.Ingest.Debounce, d.Logger)
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if !cfg.Auth.Enabled {
		d.Logger.Warn("auth disabled, /rag routes are public")
		d.AuthMiddleware = middleware.NewAuthMiddleware(nil, d.Logger)
		return nil
	}
	validator, err := middleware.NewJWTValidator(middleware.JWTConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		Leeway:   30 * time.Second,
	})
	if err != nil {
		return err
	}
	d.AuthMiddleware = middleware.NewAuthMiddleware(validator, d.Logger)
	d.Logger.Info("bearer token auth enabled")
	return nil
}

// Close gracefully shuts down all dependencies in reverse order of creation
func (d *Dependencies) Close(ctx context.Context) error {
	if d.Logger != nil {
		d.Logger.Info("shutting down dependencies")
	}

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
