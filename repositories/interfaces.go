package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ExchangeRepository handles exchange audit records
type ExchangeRepository interface {
	// Insert inserts a new exchange
	Insert(ctx context.Context, exchange *models.Exchange) error

	// GetByID retrieves an exchange by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error)

	// GetByConversationID retrieves the exchanges of a conversation, newest first
	GetByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]*models.Exchange, error)

	// GetStats aggregates exchanges created in [start, end)
	GetStats(ctx context.Context, start, end time.Time) (*ExchangeStats, error)
}

// ExchangeStats represents aggregated exchange metrics
type ExchangeStats struct {
	TotalExchanges     int     `json:"total_exchanges"`
	FailedExchanges    int     `json:"failed_exchanges"`
	CancelledExchanges int     `json:"cancelled_exchanges"`
	TotalTokens        int     `json:"total_tokens"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	AvgDocuments       float64 `json:"avg_documents"`
}

// ConversationRepository persists conversation windows
type ConversationRepository interface {
	// Load returns the stored messages of a conversation in order
	Load(ctx context.Context, conversationID string) ([]rag.Message, error)

	// Save replaces the stored messages of a conversation
	Save(ctx context.Context, conversationID string, messages []rag.Message) error

	// Delete removes a conversation
	Delete(ctx context.Context, conversationID string) error
}

// Repositories aggregates the database backed components
type Repositories struct {
	Exchanges     ExchangeRepository
	Conversations ConversationRepository
	Vectors       rag.VectorStore
}
