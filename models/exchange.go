package models

import (
	"time"

	"github.com/google/uuid"
)

// ExchangeMode is the entry point that served an exchange.
type ExchangeMode string

const (
	ExchangeModeCall   ExchangeMode = "call"
	ExchangeModeStream ExchangeMode = "stream"
)

// ExchangeStatus is the outcome of an exchange.
type ExchangeStatus string

const (
	ExchangeStatusOK        ExchangeStatus = "ok"
	ExchangeStatusFailed    ExchangeStatus = "failed"
	ExchangeStatusCancelled ExchangeStatus = "cancelled"
)

// Exchange is the audit record of one RAG request. Prompt and answer text
// are not stored, only their sizes.
type Exchange struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	ConversationID string         `json:"conversation_id" db:"conversation_id"`
	RequestID      string         `json:"request_id" db:"request_id"`
	Mode           ExchangeMode   `json:"mode" db:"mode"`
	Status         ExchangeStatus `json:"status" db:"status"`
	ErrorType      *string        `json:"error_type,omitempty" db:"error_type"`
	ErrorMessage   *string        `json:"error_message,omitempty" db:"error_message"`
	Model          string         `json:"model" db:"model"`
	Filter         string         `json:"filter,omitempty" db:"filter"`
	Documents      int            `json:"documents" db:"documents"`
	PromptLength   int            `json:"prompt_length" db:"prompt_length"`
	ResponseLength int            `json:"response_length" db:"response_length"`
	TokensUsed     int            `json:"tokens_used" db:"tokens_used"`
	LatencyMs      int64          `json:"latency_ms" db:"latency_ms"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Exchange model
func (Exchange) TableName() string {
	return "rag_exchanges"
}

// NewExchange creates an exchange for a conversation.
func NewExchange(conversationID string, mode ExchangeMode) *Exchange {
	return &Exchange{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Mode:           mode,
		Status:         ExchangeStatusOK,
		CreatedAt:      time.Now().UTC(),
	}
}

// Fail marks the exchange as failed.
func (e *Exchange) Fail(errType, message string) {
	e.Status = ExchangeStatusFailed
	if errType != "" {
		e.ErrorType = &errType
	}
	if message != "" {
		e.ErrorMessage = &message
	}
}

// ConversationMessage is one persisted memory entry.
type ConversationMessage struct {
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Position       int       `json:"position" db:"position"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ConversationMessage model
func (ConversationMessage) TableName() string {
	return "rag_conversation_messages"
}
