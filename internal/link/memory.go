package link

import (
	"context"
	"sync"

	"github.com/temaline/chatbridge/internal/bridge"
)

// MemoryStore keeps links in process memory. It backs the bridge when no
// database is configured and the fakes-free test setups.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]bridge.ConversationLink // keyed by amoCRM chat id
	messages      map[string]bridge.MessageLink      // keyed by source message id
}

// NewMemoryStore creates an empty in-memory link store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]bridge.ConversationLink),
		messages:      make(map[string]bridge.MessageLink),
	}
}

func (s *MemoryStore) EdnaConversationID(ctx context.Context, amoChatID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.conversations[amoChatID]
	if !ok {
		return "", ErrNotFound
	}
	return l.EdnaConversationID, nil
}

// AmoChatID scans all rows and returns the first match. Duplicate edna
// conversation ids are possible; the scan keeps the first one it sees.
func (s *MemoryStore) AmoChatID(ctx context.Context, ednaConversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, l := range s.conversations {
		if l.EdnaConversationID == ednaConversationID {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) Phone(ctx context.Context, amoChatID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.conversations[amoChatID]
	if !ok || l.Phone == "" {
		return "", ErrNotFound
	}
	return l.Phone, nil
}

func (s *MemoryStore) ChatIDByPhone(ctx context.Context, phone string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, l := range s.conversations {
		if l.Phone != "" && l.Phone == phone {
			return id, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) SaveConversationLink(ctx context.Context, l bridge.ConversationLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.conversations[l.AmoChatID]
	if ok && l.Phone == "" {
		// Keep an already-attached phone on re-link.
		l.Phone = existing.Phone
	}
	s.conversations[l.AmoChatID] = l
	return nil
}

func (s *MemoryStore) SavePhone(ctx context.Context, amoChatID, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.conversations[amoChatID]
	if !ok {
		return ErrNotFound
	}
	l.Phone = phone
	s.conversations[amoChatID] = l
	return nil
}

func (s *MemoryStore) MessageLink(ctx context.Context, sourceMessageID string) (bridge.MessageLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.messages[sourceMessageID]
	if !ok {
		return bridge.MessageLink{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) SaveMessageLink(ctx context.Context, l bridge.MessageLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[l.SourceMessageID] = l
	return nil
}
