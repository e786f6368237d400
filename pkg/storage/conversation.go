package storage

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const (
	// DefaultTitle names conversations before their first user message.
	DefaultTitle = "New Conversation"

	maxTitleLength = 60
)

// Now returns the timestamp format stored on conversations and messages.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewConversation creates an empty conversation with the default title.
func NewConversation(id string) *llm.Conversation {
	now := Now()
	return &llm.Conversation{
		ID:        id,
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []llm.ChatMessage{},
	}
}

// GenerateTitle derives a title from the first non-blank user message,
// truncated to 60 characters with a trailing ellipsis.
func GenerateTitle(messages []llm.ChatMessage) string {
	for _, msg := range messages {
		if msg.Role != llm.RoleUser {
			continue
		}

		text := strings.Join(strings.Fields(msg.Content), " ")
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxTitleLength {
			runes := []rune(text)
			return string(runes[:maxTitleLength-3]) + "..."
		}
		return text
	}

	return DefaultTitle
}

// SortByUpdated orders conversations most recently updated first.
// Unparseable timestamps sort last.
func SortByUpdated(convs []*llm.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return updatedAt(convs[i]).After(updatedAt(convs[j]))
	})
}

func updatedAt(c *llm.Conversation) time.Time {
	t, err := time.Parse(time.RFC3339Nano, c.UpdatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a deep copy so callers never share message slices with a store.
func Clone(c *llm.Conversation) *llm.Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]llm.ChatMessage{}, c.Messages...)
	return &out
}
