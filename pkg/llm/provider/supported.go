package provider

import (
	"fmt"

	"github.com/papercomputeco/chatstream/pkg/llm/provider/besteffort"
	"github.com/papercomputeco/chatstream/pkg/llm/provider/openai"
)

// Supported parser type constants
const (
	OpenAI     = "openai"
	NanoGPT    = "nanogpt"
	BestEffort = "besteffort"
)

// SupportedProviders returns the list of all supported parser type names.
func SupportedProviders() []string {
	return []string{OpenAI, NanoGPT, BestEffort}
}

// New creates a fresh ChunkParser for the given provider type.
// Returns an error if the provider type is not recognized.
func New(providerType string) (ChunkParser, error) {
	switch providerType {
	case OpenAI, NanoGPT, "":
		return openai.New(), nil
	case BestEffort:
		return besteffort.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}
