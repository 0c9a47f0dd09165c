package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/orchestra-mcp/chat/src/types"
)

// MemoryStore is an in-process user directory and conversation store.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]types.UserRecord
	conversations map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]types.UserRecord),
		conversations: make(map[string][]string),
	}
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(u types.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// DeleteUser removes a user.
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
}

// PutConversation inserts or replaces a conversation's participant list.
func (s *MemoryStore) PutConversation(id string, participants ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(participants))
	copy(cp, participants)
	s.conversations[id] = cp
}

// FindUserByID implements types.UserDirectory.
func (s *MemoryStore) FindUserByID(ctx context.Context, id string) (types.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return types.UserRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return types.UserRecord{}, fmt.Errorf("%w: %s", types.ErrUserNotFound, id)
	}
	return u, nil
}

// FindConversationByID implements types.ConversationStore.
func (s *MemoryStore) FindConversationByID(ctx context.Context, id string) (types.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return types.Conversation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	participants, ok := s.conversations[id]
	if !ok {
		return types.Conversation{}, fmt.Errorf("%w: %s", types.ErrConversationNotFound, id)
	}
	cp := make([]string, len(participants))
	copy(cp, participants)
	return types.Conversation{ID: id, Participants: cp}, nil
}
