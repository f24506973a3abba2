package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/rag-chat/models"
	"github.com/upb/rag-chat/repositories"
	"github.com/upb/rag-chat/services"
	"go.uber.org/zap"
)

const exchangeColumns = `id, conversation_id, request_id, mode, status, error_type, error_message,
		       model, filter, documents, prompt_length, response_length, tokens_used, latency_ms, created_at`

// ExchangeRepository implements the repositories.ExchangeRepository interface
type ExchangeRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewExchangeRepository creates a new exchange repository
func NewExchangeRepository(db *DB, logger *zap.Logger) repositories.ExchangeRepository {
	return &ExchangeRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new exchange
func (r *ExchangeRepository) Insert(ctx context.Context, ex *models.Exchange) error {
	query := `
		INSERT INTO rag_exchanges (
			id, conversation_id, request_id, mode, status, error_type, error_message,
			model, filter, documents, prompt_length, response_length, tokens_used, latency_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		ex.ID,
		ex.ConversationID,
		ex.RequestID,
		ex.Mode,
		ex.Status,
		ex.ErrorType,
		ex.ErrorMessage,
		ex.Model,
		ex.Filter,
		ex.Documents,
		ex.PromptLength,
		ex.ResponseLength,
		ex.TokensUsed,
		ex.LatencyMs,
		ex.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	r.logger.Debug("exchange inserted", zap.String("id", ex.ID.String()), zap.String("status", string(ex.Status)))
	return nil
}

// GetByID retrieves an exchange by ID
func (r *ExchangeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Exchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM rag_exchanges WHERE id = $1`

	executor := GetExecutor(ctx, r.db)
	ex, err := scanExchange(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: exchange %s", services.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get exchange: %w", err)
	}
	return ex, nil
}

// GetByConversationID retrieves the exchanges of a conversation, newest first
func (r *ExchangeRepository) GetByConversationID(ctx context.Context, conversationID string, limit, offset int) ([]*models.Exchange, error) {
	query := `
		SELECT ` + exchangeColumns + `
		FROM rag_exchanges
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []*models.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange rows: %w", err)
	}
	return exchanges, nil
}

// GetStats aggregates exchanges created in [start, end)
func (r *ExchangeRepository) GetStats(ctx context.Context, start, end time.Time) (*repositories.ExchangeStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'cancelled'),
			COALESCE(SUM(tokens_used), 0),
			COALESCE(AVG(latency_ms), 0),
			COALESCE(AVG(documents), 0)
		FROM rag_exchanges
		WHERE created_at >= $1 AND created_at < $2
	`

	stats := &repositories.ExchangeStats{}
	executor := GetExecutor(ctx, r.db)
	err := executor.QueryRowContext(ctx, query, start, end).Scan(
		&stats.TotalExchanges,
		&stats.FailedExchanges,
		&stats.CancelledExchanges,
		&stats.TotalTokens,
		&stats.AvgLatencyMs,
		&stats.AvgDocuments,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExchange(row rowScanner) (*models.Exchange, error) {
	ex := &models.Exchange{}
	var requestID, model, filter sql.NullString
	err := row.Scan(
		&ex.ID,
		&ex.ConversationID,
		&requestID,
		&ex.Mode,
		&ex.Status,
		&ex.ErrorType,
		&ex.ErrorMessage,
		&model,
		&filter,
		&ex.Documents,
		&ex.PromptLength,
		&ex.ResponseLength,
		&ex.TokensUsed,
		&ex.LatencyMs,
		&ex.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ex.RequestID = requestID.String
	ex.Model = model.String
	ex.Filter = filter.String
	return ex, nil
}
