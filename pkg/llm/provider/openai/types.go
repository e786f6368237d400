package openai

// openaiChunk represents one streamed chat.completion.chunk payload.
type openaiChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
}

// openaiChoice carries either an incremental delta, a full message snapshot,
// or both. Some OpenAI-compatible providers (NanoGPT among them) send the
// snapshot instead of deltas.
type openaiChoice struct {
	Index        int             `json:"index"`
	Delta        openaiDelta     `json:"delta"`
	Message      *openaiSnapshot `json:"message,omitempty"`
	FinishReason *string         `json:"finish_reason"`
}

// openaiDelta holds the incremental fields, in extraction priority order.
type openaiDelta struct {
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Text      string `json:"text,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

type openaiSnapshot struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}
