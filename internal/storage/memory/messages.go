package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
)

// MessageStore keeps conversation logs in process memory.
type MessageStore struct {
	mu    sync.RWMutex
	logs  map[string][]chat.Message
	ids   map[string]struct{}
	clock func() time.Time
}

// NewMessageStore bootstraps an empty in-memory message log.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		logs:  make(map[string][]chat.Message),
		ids:   make(map[string]struct{}),
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Append stamps msg with the server time and adds it to its conversation.
// Timestamps never go backwards within a conversation.
func (s *MessageStore) Append(_ context.Context, msg chat.Message) (chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return chat.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.ids[msg.ID]; dup {
		return chat.Message{}, chat.ErrDuplicateID
	}

	stored := msg.Clone()
	stored.Timestamp = s.clock()
	log := s.logs[msg.ConversationID]
	if n := len(log); n > 0 && stored.Timestamp.Before(log[n-1].Timestamp) {
		stored.Timestamp = log[n-1].Timestamp
	}

	s.logs[msg.ConversationID] = append(log, stored)
	s.ids[msg.ID] = struct{}{}
	return stored.Clone(), nil
}

// List returns a copy of the conversation, oldest first.
func (s *MessageStore) List(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[conversationID]
	copied := make([]chat.Message, len(log))
	for i, m := range log {
		copied[i] = m.Clone()
	}
	return copied, nil
}
