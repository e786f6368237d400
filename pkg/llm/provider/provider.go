// Package provider defines the chunk parser capability used by the
// re-framer to turn provider-specific streaming payloads into content deltas.
package provider

import (
	"github.com/papercomputeco/chatstream/pkg/llm"
)

// ChunkParser decodes one provider payload at a time. Each parser instance
// belongs to exactly one streaming session: implementations keep the content
// already surfaced so full-message snapshots are emitted at most once.
//
// Implementations are not safe for concurrent use.
type ChunkParser interface {
	// Name returns the canonical parser name (e.g., "openai", "besteffort")
	Name() string

	// CanParse is a cheap structural check on an isolated payload (framing
	// already stripped). Payloads it rejects are skipped by the caller.
	CanParse(payload []byte) bool

	// Parse extracts the new content and completion flag from one payload.
	// Malformed payloads return a *llm.DecodeError.
	Parse(payload []byte) (llm.ParseResult, error)

	// Reset clears accumulated state so the parser can serve a new session.
	Reset()
}
