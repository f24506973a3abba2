package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/repositories"
	"go.uber.org/zap"
)

// MemoryStore persists conversation windows, one row per message.
type MemoryStore struct {
	db     *DB
	tm     repositories.TransactionManager
	logger *zap.Logger
}

// NewMemoryStore creates a new conversation store
func NewMemoryStore(db *DB, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Load returns the stored messages of a conversation in order
func (s *MemoryStore) Load(ctx context.Context, conversationID string) ([]rag.Message, error) {
	query := `
		SELECT role, content
		FROM rag_conversation_messages
		WHERE conversation_id = $1
		ORDER BY position ASC
	`

	executor := GetExecutor(ctx, s.db)
	rows, err := executor.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var messages []rag.Message
	for rows.Next() {
		var m rag.Message
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

// Save replaces the stored messages of a conversation
func (s *MemoryStore) Save(ctx context.Context, conversationID string, messages []rag.Message) error {
	return s.tm.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		executor := GetExecutor(ctx, s.db)
		if _, err := executor.ExecContext(ctx,
			`DELETE FROM rag_conversation_messages WHERE conversation_id = $1`, conversationID); err != nil {
			return fmt.Errorf("failed to clear conversation: %w", err)
		}

		now := time.Now().UTC()
		for i, m := range messages {
			_, err := executor.ExecContext(ctx, `
				INSERT INTO rag_conversation_messages (conversation_id, position, role, content, created_at)
				VALUES ($1, $2, $3, $4, $5)
			`, conversationID, i, string(m.Role), m.Content, now)
			if err != nil {
				return fmt.Errorf("failed to insert message %d: %w", i, err)
			}
		}

		s.logger.Debug("conversation saved",
			zap.String("conversation_id", conversationID),
			zap.Int("messages", len(messages)))
		return nil
	})
}

// Delete removes a conversation
func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	executor := GetExecutor(ctx, s.db)
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM rag_conversation_messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}
