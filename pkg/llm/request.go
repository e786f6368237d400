package llm

// CompletionRequest is the OpenAI-compatible chat completion body sent to
// the upstream provider.
type CompletionRequest struct {
	// Model name (e.g., "openai/gpt-oss-120b")
	Model string `json:"model"`

	// System prompt first, followed by the mapped conversation
	Messages []Message `json:"messages"`

	Stream bool `json:"stream"`

	// Sampling parameters
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// ChatRequest is the body accepted by the chat endpoint.
type ChatRequest struct {
	ConversationID    string        `json:"conversationId"`
	Messages          []ChatMessage `json:"messages"`
	ResponseMessageID string        `json:"responseMessageId,omitempty"`
	Signals           *Signals      `json:"signals,omitempty"`
}

// Signals carries optional hints about the request.
type Signals struct {
	Regenerate bool `json:"regenerate,omitempty"`
}

// IsRegenerate reports whether the request regenerates an existing message.
func (r *ChatRequest) IsRegenerate() bool {
	return r.Signals != nil && r.Signals.Regenerate
}
