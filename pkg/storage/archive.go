package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// ArchiveVersion is the export format version.
const ArchiveVersion = 1

// ErrInvalidArchive is returned when an import payload is not a conversation archive.
var ErrInvalidArchive = errors.New("invalid conversation archive")

// Archive is the export file format.
type Archive struct {
	Version       int                 `json:"version"`
	ExportedAt    string              `json:"exportedAt"`
	Conversations []*llm.Conversation `json:"conversations"`
}

// Export writes every conversation in d as an indented JSON archive.
func Export(ctx context.Context, d Driver, w io.Writer) error {
	convs, err := d.List(ctx)
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Archive{
		Version:       ArchiveVersion,
		ExportedAt:    Now(),
		Conversations: convs,
	}); err != nil {
		return fmt.Errorf("encoding archive: %w", err)
	}
	return nil
}

// ParseArchive decodes and validates an archive. Only the conversations are
// returned; every one must carry an id and a messages array.
func ParseArchive(data []byte) ([]*llm.Conversation, error) {
	var raw struct {
		Version       int               `json:"version"`
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	if raw.Conversations == nil {
		return nil, fmt.Errorf("%w: missing conversations", ErrInvalidArchive)
	}
	if raw.Version > ArchiveVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArchive, raw.Version)
	}

	convs := make([]*llm.Conversation, 0, len(raw.Conversations))
	for i, item := range raw.Conversations {
		var probe struct {
			ID       string            `json:"id"`
			Messages []llm.ChatMessage `json:"messages"`
		}
		if err := json.Unmarshal(item, &probe); err != nil || probe.ID == "" || probe.Messages == nil {
			return nil, fmt.Errorf("%w: conversation %d is malformed", ErrInvalidArchive, i)
		}

		var conv llm.Conversation
		if err := json.Unmarshal(item, &conv); err != nil {
			return nil, fmt.Errorf("%w: conversation %d: %w", ErrInvalidArchive, i, err)
		}
		if conv.Title == "" {
			conv.Title = GenerateTitle(conv.Messages)
		}
		convs = append(convs, &conv)
	}

	return convs, nil
}

// Merge combines existing and incoming conversations by id, incoming
// winning, and returns them most recently updated first.
func Merge(existing, incoming []*llm.Conversation) []*llm.Conversation {
	byID := make(map[string]*llm.Conversation, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))

	for _, list := range [][]*llm.Conversation{existing, incoming} {
		for _, c := range list {
			if _, seen := byID[c.ID]; !seen {
				order = append(order, c.ID)
			}
			byID[c.ID] = c
		}
	}

	merged := make([]*llm.Conversation, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	SortByUpdated(merged)
	return merged
}

// Import parses an archive and stores its conversations in d, replacing
// conversations with the same id. It returns the merged, sorted list.
func Import(ctx context.Context, d Driver, r io.Reader) ([]*llm.Conversation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}

	incoming, err := ParseArchive(data)
	if err != nil {
		return nil, err
	}

	existing, err := d.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	for _, conv := range incoming {
		if err := d.Put(ctx, conv); err != nil {
			return nil, fmt.Errorf("storing conversation %s: %w", conv.ID, err)
		}
	}

	return Merge(existing, incoming), nil
}
