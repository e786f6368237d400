// Package inmemory provides a map backed storage.Driver for tests and
// ephemeral chat sessions.
package inmemory

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// Driver implements storage.Driver using an in-memory map.
type Driver struct {
	// mu is a read write sync mutex for locking the mapping of conversations
	mu sync.RWMutex

	// conversations is keyed by conversation id. Stored values are private
	// copies and never handed out directly.
	conversations map[string]*llm.Conversation
}

// NewDriver creates a new in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		conversations: make(map[string]*llm.Conversation),
	}
}

// List returns copies of all conversations, most recently updated first.
func (s *Driver) List(_ context.Context) ([]*llm.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	convs := make([]*llm.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		convs = append(convs, storage.Clone(conv))
	}
	storage.SortByUpdated(convs)

	return convs, nil
}

// Get retrieves a copy of a conversation by id.
func (s *Driver) Get(_ context.Context, id string) (*llm.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, storage.NotFoundError{ConversationID: id}
	}

	return storage.Clone(conv), nil
}

// Put stores a copy of conv, replacing any conversation with the same id.
func (s *Driver) Put(_ context.Context, conv *llm.Conversation) error {
	if conv == nil {
		return errors.New("cannot store nil conversation")
	}
	if conv.ID == "" {
		return errors.New("cannot store conversation without id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations[conv.ID] = storage.Clone(conv)
	return nil
}

// Delete removes a conversation.
func (s *Driver) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
	return nil
}

// AppendMessage adds msg to the end of the conversation.
func (s *Driver) AppendMessage(_ context.Context, conversationID string, msg llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storage.NotFoundError{ConversationID: conversationID}
	}

	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = storage.Now()
	return nil
}

// ReplaceMessage sets the content of a message.
func (s *Driver) ReplaceMessage(_ context.Context, conversationID, messageID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return storage.NotFoundError{ConversationID: conversationID}
	}

	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Content = content
			conv.UpdatedAt = storage.Now()
			return nil
		}
	}

	return storage.NotFoundError{ConversationID: conversationID, MessageID: messageID}
}

// Rename sets the conversation title.
func (s *Driver) Rename(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return storage.NotFoundError{ConversationID: id}
	}

	conv.Title = title
	conv.UpdatedAt = storage.Now()
	return nil
}

// Count returns the number of conversations in the in-memory store.
func (s *Driver) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Close is a no-op for the in-memory driver.
func (s *Driver) Close() error {
	return nil
}
