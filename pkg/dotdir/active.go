package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	activeFile = "active.json"
)

// ActiveConversation records the conversation the chat command resumes.
type ActiveConversation struct {
	ConversationID string `json:"conversationId"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// LoadActiveConversation loads .chatstream/active.json. Returns nil, nil if
// no conversation is active.
func (m *Manager) LoadActiveConversation(overrideDir string) (*ActiveConversation, error) {
	path, err := m.File(overrideDir, activeFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading active conversation: %w", err)
	}

	active := &ActiveConversation{}
	if err := json.Unmarshal(data, active); err != nil {
		return nil, fmt.Errorf("parsing active conversation: %w", err)
	}
	if active.ConversationID == "" {
		return nil, nil
	}

	return active, nil
}

// SaveActiveConversation persists active to .chatstream/active.json.
func (m *Manager) SaveActiveConversation(active *ActiveConversation, overrideDir string) error {
	if active == nil || active.ConversationID == "" {
		return errors.New("cannot save active conversation without id")
	}

	path, err := m.File(overrideDir, activeFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(active, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling active conversation: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing active conversation: %w", err)
	}

	return nil
}

// ClearActiveConversation removes active.json so the next chat starts a new
// conversation. Returns nil if nothing was active.
func (m *Manager) ClearActiveConversation(overrideDir string) error {
	path, err := m.File(overrideDir, activeFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing active conversation: %w", err)
	}

	return nil
}
