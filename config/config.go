package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	RAG           RAGConfig
	VectorStore   VectorStoreConfig
	Memory        MemoryConfig
	Ingest        IngestConfig
	Audit         AuditConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // zero disables the limit, needed for long streams
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds LLM provider configurations
type ProvidersConfig struct {
	ChatProvider      string // openai or ollama
	EmbeddingProvider string // openai or ollama
	OpenAI            OpenAIConfig
	Ollama            OllamaConfig
}

// OpenAIConfig holds OpenAI provider configuration
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OllamaConfig holds Ollama provider configuration
type OllamaConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// RAGConfig holds retrieval and generation defaults
type RAGConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	TopK                int
	SimilarityThreshold float64
	AllowEmptyContext   bool
	MemoryWindow        int
	StreamBuffer        int
	Temperature         float64
	MaxTokens           int
	ChatModel           string
	EmbeddingModel      string
	EmbeddingCacheSize  int // zero disables the cache
	SystemPrompt        string
	PrintResults        bool // print retrieved documents before each answer
}

// VectorStoreConfig selects and configures the vector store engine
type VectorStoreConfig struct {
	Type         string // memory, postgres or sqlite
	SnapshotPath string // memory store persistence; empty disables it
	SQLitePath   string
	Dimension    int
}

// MemoryConfig selects where conversation windows live
type MemoryConfig struct {
	Type string // memory or postgres
}

// IngestConfig holds document ingestion settings
type IngestConfig struct {
	Pattern        string
	OnStartup      bool
	Watch          bool
	Debounce       time.Duration
	Keywords       bool
	KeywordCount   int
	PrintDocuments bool
	BatchSize      int
}

// AuditConfig holds exchange audit settings
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// AuthConfig holds bearer token settings for the /rag routes
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string

	// RequiredScope, when set, must appear in the token's scopes
	RequiredScope string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	cfg := Load()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads .env and the environment without validating
func Load() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			ChatProvider:      strings.ToLower(getEnv("CHAT_PROVIDER", ProviderOpenAI)),
			EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", ProviderOpenAI)),
			OpenAI: OpenAIConfig{
				APIKey:     getEnv("OPENAI_API_KEY", ""),
				BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				OrgID:      getEnv("OPENAI_ORG_ID", ""),
				Timeout:    getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 3),
				RetryDelay: getEnvAsDuration("OPENAI_RETRY_DELAY", 500*time.Millisecond),
			},
			Ollama: OllamaConfig{
				BaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Timeout:    getEnvAsDuration("OLLAMA_TIMEOUT", 2*time.Minute),
				MaxRetries: getEnvAsInt("OLLAMA_MAX_RETRIES", 2),
				RetryDelay: getEnvAsDuration("OLLAMA_RETRY_DELAY", 500*time.Millisecond),
			},
		},
		RAG: RAGConfig{
			ChunkSize:           getEnvAsInt("RAG_CHUNK_SIZE", 200),
			ChunkOverlap:        getEnvAsInt("RAG_CHUNK_OVERLAP", 100),
			TopK:                getEnvAsInt("RAG_TOP_K", 3),
			SimilarityThreshold: getEnvAsFloat("RAG_SIMILARITY_THRESHOLD", 0.3),
			AllowEmptyContext:   getEnvAsBool("RAG_ALLOW_EMPTY_CONTEXT", false),
			MemoryWindow:        getEnvAsInt("RAG_MEMORY_WINDOW", 10),
			StreamBuffer:        getEnvAsInt("RAG_STREAM_BUFFER", 16),
			Temperature:         getEnvAsFloat("RAG_TEMPERATURE", 0.0),
			MaxTokens:           getEnvAsInt("RAG_MAX_TOKENS", 0),
			ChatModel:           getEnv("RAG_CHAT_MODEL", "gpt-4o-mini"),
			EmbeddingModel:      getEnv("RAG_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingCacheSize:  getEnvAsInt("RAG_EMBEDDING_CACHE_SIZE", 1024),
			SystemPrompt:        getEnv("RAG_SYSTEM_PROMPT", ""),
			PrintResults:        getEnvAsBool("RAG_PRINT_RESULTS", false),
		},
		VectorStore: VectorStoreConfig{
			Type:         strings.ToLower(getEnv("VECTOR_STORE", StoreMemory)),
			SnapshotPath: getEnv("VECTOR_STORE_SNAPSHOT", ""),
			SQLitePath:   getEnv("VECTOR_STORE_SQLITE_PATH", "data/rag.db"),
			Dimension:    getEnvAsInt("VECTOR_STORE_DIMENSION", 1536),
		},
		Memory: MemoryConfig{
			Type: strings.ToLower(getEnv("MEMORY_STORE", StoreMemory)),
		},
		Ingest: IngestConfig{
			Pattern:        getEnv("INGEST_PATTERN", "data/documents"),
			OnStartup:      getEnvAsBool("INGEST_ON_STARTUP", false),
			Watch:          getEnvAsBool("INGEST_WATCH", false),
			Debounce:       getEnvAsDuration("INGEST_DEBOUNCE", 500*time.Millisecond),
			Keywords:       getEnvAsBool("INGEST_KEYWORDS", false),
			KeywordCount:   getEnvAsInt("INGEST_KEYWORD_COUNT", 4),
			PrintDocuments: getEnvAsBool("INGEST_PRINT_DOCUMENTS", false),
			BatchSize:      getEnvAsInt("INGEST_BATCH_SIZE", 32),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
		},
		Auth: AuthConfig{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
			Audience:  getEnv("AUTH_AUDIENCE", ""),

			RequiredScope: getEnv("AUTH_REQUIRED_SCOPE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	return cfg
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if err := c.RAG.Validate(); err != nil {
		return err
	}

	switch c.VectorStore.Type {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if !c.Database.Configured() {
			return fmt.Errorf("postgres vector store requires DATABASE_URL or DB_HOST")
		}
		if c.VectorStore.Dimension <= 0 {
			return fmt.Errorf("vector dimension must be positive")
		}
	default:
		return fmt.Errorf("unknown vector store %q", c.VectorStore.Type)
	}

	switch c.Memory.Type {
	case StoreMemory:
	case StorePostgres:
		if !c.Database.Configured() {
			return fmt.Errorf("postgres memory store requires DATABASE_URL or DB_HOST")
		}
	default:
		return fmt.Errorf("unknown memory store %q", c.Memory.Type)
	}

	if c.Database.Configured() && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	for _, p := range []string{c.Providers.ChatProvider, c.Providers.EmbeddingProvider} {
		switch p {
		case ProviderOpenAI, ProviderOllama:
		default:
			return fmt.Errorf("unknown provider %q", p)
		}
	}
	if c.IsProduction() && c.usesProvider(ProviderOpenAI) && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production")
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required when auth is enabled")
	}

	if c.Audit.Enabled && (c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0) {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// Validate checks the retrieval and chunking parameters
func (c *RAGConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, chunk size)")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("topK must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0, 1]")
	}
	if c.MemoryWindow <= 0 {
		return fmt.Errorf("memory window must be positive")
	}
	if c.StreamBuffer <= 0 {
		return fmt.Errorf("stream buffer must be positive")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2]")
	}
	if strings.TrimSpace(c.ChatModel) == "" || strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("chat and embedding models are required")
	}
	return nil
}

func (c *Config) usesProvider(name string) bool {
	return c.Providers.ChatProvider == name || c.Providers.EmbeddingProvider == name
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// NeedsDatabase reports whether any component is backed by postgres
func (c *Config) NeedsDatabase() bool {
	return c.VectorStore.Type == StorePostgres || c.Memory.Type == StorePostgres ||
		(c.Audit.Enabled && c.Database.Configured())
}

// Configured reports whether a database was configured at all
func (c *DatabaseConfig) Configured() bool {
	return c.ConnectionString != "" || c.Host != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Leaving both unset means no database.
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "rag"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "rag"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
