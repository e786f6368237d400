// Package besteffort is a fallback chunk parser for streaming formats that
// are close to, but not exactly, OpenAI's chat completion chunks.
package besteffort

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Parser implements provider.ChunkParser by probing common field layouts:
// OpenAI choices, Anthropic content_block_delta events and Ollama chat and
// generate chunks.
type Parser struct {
	accumulated strings.Builder
}

func New() *Parser { return &Parser{} }

func (b *Parser) Name() string {
	return "besteffort"
}

// CanParse reports whether the payload looks like a JSON object.
func (b *Parser) CanParse(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{"))
}

// Parse extracts incremental content first and falls back to a full snapshot
// only while nothing has been surfaced in this session.
func (b *Parser) Parse(payload []byte) (llm.ParseResult, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return llm.ParseResult{}, &llm.DecodeError{Payload: string(payload), Err: err}
	}

	piece := extractDelta(raw)
	if piece == "" && b.accumulated.Len() == 0 {
		piece = extractSnapshot(raw)
	}
	b.accumulated.WriteString(piece)

	return llm.ParseResult{
		Content: piece,
		Done:    isDone(raw),
	}, nil
}

// Reset clears accumulated content.
func (b *Parser) Reset() {
	b.accumulated.Reset()
}

// extractDelta tries the incremental content layouts in order.
func extractDelta(raw map[string]any) string {
	// Strategy 1: OpenAI-style choices[0].delta
	if choice := firstChoice(raw); choice != nil {
		if delta, ok := choice["delta"].(map[string]any); ok {
			if text := extractString(delta, "content", "text", "reasoning"); text != "" {
				return text
			}
		}
	}

	// Strategy 2: Anthropic-style content_block_delta with delta.text
	if delta, ok := raw["delta"].(map[string]any); ok {
		if text := extractString(delta, "text", "thinking"); text != "" {
			return text
		}
	}

	// Strategy 3: Ollama chat chunks stream message.content incrementally
	if _, ollama := raw["done"]; ollama {
		if msg, ok := raw["message"].(map[string]any); ok {
			if text := extractString(msg, "content"); text != "" {
				return text
			}
		}
	}

	// Strategy 4: Ollama generate chunks
	return extractString(raw, "response")
}

// extractSnapshot tries the full-message layouts in order.
func extractSnapshot(raw map[string]any) string {
	// Strategy 1: OpenAI-style choices[0].message.content
	if choice := firstChoice(raw); choice != nil {
		if msg, ok := choice["message"].(map[string]any); ok {
			if text := extractString(msg, "content"); text != "" {
				return text
			}
		}
	}

	// Strategy 2: Anthropic-style content array of text blocks
	if blocks, ok := raw["content"].([]any); ok {
		var sb strings.Builder
		for _, item := range blocks {
			if block, ok := item.(map[string]any); ok {
				sb.WriteString(extractString(block, "text"))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}

	// Strategy 3: direct content or generic output fields
	return extractString(raw, "content", "output", "generated_text", "result")
}

// isDone checks the terminal markers used across providers.
func isDone(raw map[string]any) bool {
	if choice := firstChoice(raw); choice != nil {
		if extractString(choice, "finish_reason") != "" {
			return true
		}
	}

	if done, ok := raw["done"].(bool); ok && done {
		return true
	}

	if extractString(raw, "finish_reason", "stop_reason") != "" {
		return true
	}

	if delta, ok := raw["delta"].(map[string]any); ok && extractString(delta, "stop_reason") != "" {
		return true
	}

	return extractString(raw, "type") == "message_stop"
}

func firstChoice(raw map[string]any) map[string]any {
	choices, ok := raw["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]any)
	return choice
}

// Helper functions for extracting values from maps

func extractString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
