// Package storage persists conversations for the chat client. Drivers are
// simple key-value style stores keyed by conversation id.
package storage

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Driver defines the interface for persisting and retrieving conversations
// in a storage backend.
type Driver interface {
	// List returns every conversation, most recently updated first.
	List(ctx context.Context) ([]*llm.Conversation, error)

	// Get retrieves a conversation with its messages in order.
	Get(ctx context.Context, id string) (*llm.Conversation, error)

	// Put inserts or fully replaces a conversation, including its messages.
	Put(ctx context.Context, conv *llm.Conversation) error

	// Delete removes a conversation. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// AppendMessage adds msg at the end of the conversation and bumps its
	// updated timestamp.
	AppendMessage(ctx context.Context, conversationID string, msg llm.ChatMessage) error

	// ReplaceMessage sets the content of an existing message. It is called on
	// every streamed delta, so drivers keep it cheap.
	ReplaceMessage(ctx context.Context, conversationID, messageID, content string) error

	// Rename sets the conversation title.
	Rename(ctx context.Context, id, title string) error

	// Close closes the store and releases any resources.
	Close() error
}
