package llm

import (
	"strings"
	"time"
)

// Roles understood by the upstream provider and the chat endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single upstream completion message. This is the shape sent
// to the provider, after the chat history has been mapped and the system
// prompt prepended.
type Message struct {
	Role    string `json:"role"`    // "system", "user", "assistant"
	Content string `json:"content"` // Plain text content
}

// ChatMessage is a message as it is exchanged with the chat endpoint and kept
// in the conversation store. System messages are never stored.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // "user" or "assistant"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// NewChatMessage creates a message with the given id, role and content,
// timestamped now in RFC 3339 format.
func NewChatMessage(id, role, content string) ChatMessage {
	return ChatMessage{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// IsBlank reports whether the message carries no text once trimmed.
func (m ChatMessage) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Conversation is an ordered list of chat messages with a title.
type Conversation struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt string        `json:"createdAt"`
	UpdatedAt string        `json:"updatedAt"`
	Messages  []ChatMessage `json:"messages"`
}

// ToUpstream maps chat messages to upstream completion messages, in order.
func ToUpstream(messages []ChatMessage) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}
