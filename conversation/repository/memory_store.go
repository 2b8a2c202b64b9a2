package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/google/uuid"
)

// MemoryStore keeps conversations in process memory. Used in tests and when
// no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]domainConversation.Message
	states   map[string]domainConversation.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]domainConversation.Message),
		states:   make(map[string]domainConversation.State),
	}
}

func (s *MemoryStore) AppendMessage(ctx context.Context, senderID, text string, author domainConversation.Author) error {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[senderID] = append(s.messages[senderID], domainConversation.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Text:      text,
		Author:    author,
		CreatedAt: now,
	})
	if st, ok := s.states[senderID]; ok {
		st.LastActivity = now
		s.states[senderID] = st
	}
	return nil
}

// GetRecentHistory returns the last limit messages, oldest first. limit <= 0 means all.
func (s *MemoryStore) GetRecentHistory(ctx context.Context, senderID string, limit int) ([]domainConversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[senderID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]domainConversation.Message(nil), all...), nil
}

func (s *MemoryStore) GetConversationStatus(ctx context.Context, senderID string) (domainConversation.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[senderID]
	if !ok {
		return domainConversation.State{}, pkgError.UnknownSenderError{SenderID: senderID}
	}
	return st, nil
}

func (s *MemoryStore) EnsureConversation(ctx context.Context, senderID string) (domainConversation.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[senderID]
	if !ok {
		st = domainConversation.State{
			SenderID:     senderID,
			Status:       domainConversation.StatusBot,
			LastActivity: time.Now().UTC(),
		}
		s.states[senderID] = st
	}
	return st, nil
}

func (s *MemoryStore) SetConversationStatus(ctx context.Context, senderID string, status domainConversation.Status, operatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[senderID]
	if !ok {
		st = domainConversation.State{SenderID: senderID, LastActivity: time.Now().UTC()}
	}
	st.Status = status
	st.AssignedOperatorID = operatorID
	s.states[senderID] = st
	return nil
}

// ListConversations returns every state, most recently active first.
func (s *MemoryStore) ListConversations(ctx context.Context) ([]domainConversation.State, error) {
	s.mu.RLock()
	out := make([]domainConversation.State, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sortStates(out)
	return out, nil
}

func sortStates(list []domainConversation.State) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].LastActivity.Equal(list[j].LastActivity) {
			return list[i].SenderID < list[j].SenderID
		}
		return list[i].LastActivity.After(list[j].LastActivity)
	})
}
