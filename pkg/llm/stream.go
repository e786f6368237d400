package llm

// StreamEvent is the normalized unit exchanged between the server-side
// re-framer and the client-side stream reader. Each event is serialized once
// as a single-line JSON payload of an SSE "data:" field.
//
// For a given (ConversationID, MessageID) pair the non-terminal Content values
// concatenated in order form the full reply. Exactly one terminal event
// (Done == true) is emitted and nothing follows it.
type StreamEvent struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`

	// Incremental text delta. Empty means no new text.
	Content string `json:"content,omitempty"`

	Done bool `json:"done"`
}

// ParseResult is what a chunk parser extracts from one upstream payload.
type ParseResult struct {
	// Content is the new text surfaced by this chunk, if any.
	Content string

	// Done is true when the chunk carries a finish reason.
	Done bool
}
