package memory

import (
	"context"
	"sync"

	"github.com/upb/rag-chat/internal/rag"
)

// Store persists the message window of each conversation.
type Store interface {
	Load(ctx context.Context, conversationID string) ([]rag.Message, error)
	Save(ctx context.Context, conversationID string, messages []rag.Message) error
	Delete(ctx context.Context, conversationID string) error
}

// InMemoryStore keeps conversations for the lifetime of the process.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]rag.Message
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string][]rag.Message)}
}

func (s *InMemoryStore) Load(_ context.Context, conversationID string) ([]rag.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.conversations[conversationID]
	out := make([]rag.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *InMemoryStore) Save(_ context.Context, conversationID string, messages []rag.Message) error {
	stored := make([]rag.Message, len(messages))
	copy(stored, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conversationID] = stored
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
	return nil
}

// Conversations returns the number of tracked conversations.
func (s *InMemoryStore) Conversations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
