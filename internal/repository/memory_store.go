package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gemini-chat/internal/domain"
)

// MemoryConversationStore guarda la colección en memoria. Sirve como fallback
// cuando no hay redis ni postgres configurados, y para tests.
type MemoryConversationStore struct {
	mu         sync.Mutex
	convs      []domain.Conversation
	selectedID string
	max        int
	logger     *zap.Logger
}

func NewMemoryConversationStore(max int, logger *zap.Logger) *MemoryConversationStore {
	return &MemoryConversationStore{max: max, logger: logger}
}

func (s *MemoryConversationStore) Load(_ context.Context) ([]domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Conversation, len(s.convs))
	copy(out, s.convs)
	return out, nil
}

func (s *MemoryConversationStore) Save(ctx context.Context, convs []domain.Conversation) error {
	return saveWithEviction(ctx, s.logger, convs, func(_ context.Context, convs []domain.Conversation) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.max > 0 && len(convs) > s.max {
			return ErrCapacityExceeded
		}
		stored := make([]domain.Conversation, len(convs))
		copy(stored, convs)
		s.convs = stored
		return nil
	})
}

func (s *MemoryConversationStore) LoadSelectedID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID, nil
}

func (s *MemoryConversationStore) SaveSelectedID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = id
	return nil
}
