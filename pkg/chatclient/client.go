// Package chatclient talks to the chat endpoint: it posts chat requests and
// reads the normalized event stream back into llm.StreamEvent values.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/proxy/header"
)

const chatPath = "/api/chat"

// Sender opens a normalized event stream for a chat request. The caller owns
// the returned response and hands it to ReadStream.
type Sender interface {
	Send(ctx context.Context, traceID string, req *llm.ChatRequest) (*http.Response, error)
}

// Client is the HTTP Sender for a running chat endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the server at target, e.g.
// "http://localhost:8080". A nil httpClient uses one without a global
// timeout, since streams are long lived.
func NewClient(target string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoint:   strings.TrimRight(target, "/") + chatPath,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send posts req with the trace id header. Responses are returned whatever
// their status; ReadStream turns failures into errors.
func (c *Client) Send(ctx context.Context, traceID string, req *llm.ChatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if traceID != "" {
		httpReq.Header.Set(header.TraceIDHeader, traceID)
	}

	c.logger.Debug("sending chat request",
		"trace_id", traceID,
		"conversation_id", req.ConversationID,
		"message_id", req.ResponseMessageID,
		"messages", len(req.Messages),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", llm.ErrAborted, ctx.Err())
		}
		return nil, &llm.TransportError{Err: err}
	}
	return resp, nil
}

// Stream sends req and reads the resulting stream into handler.
func Stream(ctx context.Context, s Sender, traceID string, req *llm.ChatRequest, handler Handler, opts ...ReadOption) error {
	resp, err := s.Send(ctx, traceID, req)
	if err != nil {
		return err
	}
	return ReadStream(ctx, resp, handler, opts...)
}
