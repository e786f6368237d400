package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// ErrInjected is returned by FailingDriver for the operations it is told to fail.
var ErrInjected = errors.New("injected storage failure")

// FailingDriver wraps a storage.Driver and fails selected operations.
type FailingDriver struct {
	storage.Driver

	mu          sync.Mutex
	FailAppend  bool
	FailReplace bool
	FailRename  bool

	// Replaces counts ReplaceMessage calls, including failed ones.
	Replaces int
}

// NewFailingDriver wraps d.
func NewFailingDriver(d storage.Driver) *FailingDriver {
	return &FailingDriver{Driver: d}
}

func (f *FailingDriver) AppendMessage(ctx context.Context, conversationID string, msg llm.ChatMessage) error {
	f.mu.Lock()
	fail := f.FailAppend
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Driver.AppendMessage(ctx, conversationID, msg)
}

func (f *FailingDriver) ReplaceMessage(ctx context.Context, conversationID, messageID, content string) error {
	f.mu.Lock()
	f.Replaces++
	fail := f.FailReplace
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Driver.ReplaceMessage(ctx, conversationID, messageID, content)
}

func (f *FailingDriver) Rename(ctx context.Context, id, title string) error {
	f.mu.Lock()
	fail := f.FailRename
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Driver.Rename(ctx, id, title)
}

// ReplaceCount returns the number of ReplaceMessage calls.
func (f *FailingDriver) ReplaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Replaces
}
