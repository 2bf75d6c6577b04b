package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// ConversationStore keeps conversations in process memory. It is not
// persistent and is only suitable for development and tests.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[domain.ConversationID]*domain.Conversation
	now   func() time.Time
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		convs: make(map[domain.ConversationID]*domain.Conversation),
		now:   time.Now,
	}
}

func (s *ConversationStore) ListConversations(_ context.Context, userID domain.UserID) ([]domain.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ConversationSummary
	for _, c := range s.convs {
		if c.UserID != userID {
			continue
		}
		out = append(out, domain.ConversationSummary{
			ID:           c.ID,
			Title:        domain.DeriveTitle(c.Title, c.Messages),
			MessageCount: len(c.Messages),
			UpdatedAt:    c.UpdatedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *ConversationStore) GetConversation(_ context.Context, userID domain.UserID, id domain.ConversationID) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[id]
	if !ok || c.UserID != userID {
		return nil, domain.ErrNotFound
	}

	out := *c
	out.Title = domain.DeriveTitle(c.Title, c.Messages)
	out.Messages = domain.CloneMessages(c.Messages)
	return &out, nil
}

func (s *ConversationStore) UpsertConversation(_ context.Context, userID domain.UserID, messages []domain.Message, id domain.ConversationID) (domain.ConversationID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if id == "" {
		id = domain.ConversationID(uuid.NewString())
		s.convs[id] = &domain.Conversation{
			ID:        id,
			UserID:    userID,
			Messages:  domain.CloneMessages(messages),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return id, nil
	}

	c, ok := s.convs[id]
	if !ok || c.UserID != userID {
		return "", domain.ErrNotFound
	}
	c.Messages = domain.CloneMessages(messages)
	c.UpdatedAt = now
	return id, nil
}

func (s *ConversationStore) DeleteConversation(_ context.Context, userID domain.UserID, id domain.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok || c.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.convs, id)
	return nil
}
