// Package testutils holds fixtures and shared specs for chatstream tests.
package testutils

import (
	"github.com/papercomputeco/chatstream/pkg/llm"
)

// NewTestConversation builds a conversation with a fixed updated timestamp
// and one user message per text.
func NewTestConversation(id, updatedAt string, texts ...string) *llm.Conversation {
	conv := &llm.Conversation{
		ID:        id,
		Title:     "Conversation " + id,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
		Messages:  []llm.ChatMessage{},
	}
	for i, text := range texts {
		role := llm.RoleUser
		if i%2 == 1 {
			role = llm.RoleAssistant
		}
		conv.Messages = append(conv.Messages, llm.ChatMessage{
			ID:        id + "-m" + string(rune('a'+i)),
			Role:      role,
			Content:   text,
			Timestamp: updatedAt,
		})
	}
	return conv
}
