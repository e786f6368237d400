// Package openai parses OpenAI-compatible chat completion stream chunks.
package openai

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

// Parser implements provider.ChunkParser for OpenAI-compatible streams.
type Parser struct {
	// accumulated is the content already surfaced in this session. It only
	// decides whether a full message snapshot is new content.
	accumulated strings.Builder
}

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string {
	return "openai"
}

// CanParse reports whether the payload looks like a JSON object.
func (p *Parser) CanParse(payload []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(payload), []byte("{"))
}

// Parse decodes one chunk. Incremental content is taken from delta.content,
// delta.text, then delta.reasoning. When no delta is present and nothing has
// been surfaced yet, a message.content snapshot is surfaced once, including
// on the terminal chunk.
func (p *Parser) Parse(payload []byte) (llm.ParseResult, error) {
	var chunk openaiChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return llm.ParseResult{}, &llm.DecodeError{Payload: string(payload), Err: err}
	}

	if len(chunk.Choices) == 0 {
		return llm.ParseResult{}, nil
	}

	choice := chunk.Choices[0]

	piece := firstNonEmpty(choice.Delta.Content, choice.Delta.Text, choice.Delta.Reasoning)
	if piece == "" && p.accumulated.Len() == 0 && choice.Message != nil {
		piece = choice.Message.Content
	}
	p.accumulated.WriteString(piece)

	return llm.ParseResult{
		Content: piece,
		Done:    choice.FinishReason != nil && *choice.FinishReason != "",
	}, nil
}

// Reset clears accumulated content.
func (p *Parser) Reset() {
	p.accumulated.Reset()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
