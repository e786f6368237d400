package proxy

import (
	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/upstream"
)

// DefaultMaxMessageLength is the per message content limit of the chat endpoint.
const DefaultMaxMessageLength = 4000

// Config is the proxy server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// UpstreamURL is the base URL of the OpenAI-compatible provider
	// (e.g., "https://nano-gpt.com/api/v1")
	UpstreamURL string

	// APIKey is the bearer token sent upstream. Requests fail with 401 when empty.
	APIKey string

	// ProviderType selects the chunk parser for upstream streams
	// (e.g., "openai", "nanogpt", "besteffort").
	ProviderType string

	// Upstream holds the model, system prompt, sampling parameters and timeout.
	Upstream upstream.Options

	// MaxMessageLength caps each message's content in characters.
	MaxMessageLength int

	// Project tags published stream events (e.g., the git repository name).
	Project string

	// Publisher receives an event per completed stream. Defaults to nop.
	Publisher eventstream.Publisher
}
