// Package memory keeps a bounded, per-conversation message history.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/upb/rag-chat/internal/rag"
	"github.com/upb/rag-chat/services"
	"go.uber.org/zap"
)

// DefaultMaxMessages is the default window size.
const DefaultMaxMessages = 10

// WindowMemory holds the most recent messages of every conversation. When a
// window is full the oldest messages are evicted first. Appends to the same
// conversation are serialized; distinct conversations never contend.
type WindowMemory struct {
	store       Store
	maxMessages int
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWindowMemory creates a memory over store. A maxMessages below one uses
// DefaultMaxMessages and a nil store uses an InMemoryStore.
func NewWindowMemory(store Store, maxMessages int, logger *zap.Logger) *WindowMemory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewInMemoryStore()
	}
	if maxMessages < 1 {
		maxMessages = DefaultMaxMessages
	}
	return &WindowMemory{
		store:       store,
		maxMessages: maxMessages,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// MaxMessages returns the window size.
func (m *WindowMemory) MaxMessages() int { return m.maxMessages }

func (m *WindowMemory) lockFor(conversationID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// Append adds messages to the end of the conversation in one step and trims
// the window.
func (m *WindowMemory) Append(ctx context.Context, conversationID string, messages ...rag.Message) error {
	if strings.TrimSpace(conversationID) == "" {
		return services.ErrEmptyConversationID
	}
	if len(messages) == 0 {
		return nil
	}

	l := m.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	history, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return services.WrapInternal("failed to load conversation memory", err)
	}
	history = append(history, messages...)
	if overflow := len(history) - m.maxMessages; overflow > 0 {
		history = history[overflow:]
		m.logger.Debug("Evicted messages from conversation memory",
			zap.String("conversation_id", conversationID),
			zap.Int("evicted", overflow),
		)
	}
	if err := m.store.Save(ctx, conversationID, history); err != nil {
		return services.WrapInternal("failed to save conversation memory", err)
	}
	return nil
}

// Window returns the retained messages, oldest first. An unknown
// conversation has an empty window.
func (m *WindowMemory) Window(ctx context.Context, conversationID string) ([]rag.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, services.ErrEmptyConversationID
	}

	history, err := m.store.Load(ctx, conversationID)
	if err != nil {
		return nil, services.WrapInternal("failed to load conversation memory", err)
	}
	if len(history) > m.maxMessages {
		history = history[len(history)-m.maxMessages:]
	}
	return history, nil
}

// Clear forgets a conversation.
func (m *WindowMemory) Clear(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return services.ErrEmptyConversationID
	}

	l := m.lockFor(conversationID)
	l.Lock()
	defer l.Unlock()

	if err := m.store.Delete(ctx, conversationID); err != nil {
		return services.WrapInternal("failed to clear conversation memory", err)
	}
	return nil
}
