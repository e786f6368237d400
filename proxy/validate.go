package proxy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// ErrInvalidRequest wraps every chat request validation failure.
var ErrInvalidRequest = errors.New("invalid chat request")

func validateChatRequest(req *llm.ChatRequest, maxLength int) error {
	if len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages must be a non-empty array", ErrInvalidRequest)
	}

	for i, msg := range req.Messages {
		if msg.Role != llm.RoleUser && msg.Role != llm.RoleAssistant {
			return fmt.Errorf("%w: message %d has invalid role %q", ErrInvalidRequest, i, msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("%w: message %d has empty content", ErrInvalidRequest, i)
		}
		if utf8.RuneCountInString(msg.Content) > maxLength {
			return fmt.Errorf("%w: message %d exceeds %d characters", ErrInvalidRequest, i, maxLength)
		}
	}

	return nil
}
