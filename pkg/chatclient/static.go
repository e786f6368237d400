package chatclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/sse"
)

// StaticSender replays a fixed response without a server. It is used by
// tests and offline demos.
type StaticSender struct {
	// Status defaults to 200.
	Status int

	// Body, when set, is returned verbatim instead of Events.
	Body string

	// Events are written as a normalized stream. Empty ConversationID and
	// MessageID fields are filled from the request.
	Events []llm.StreamEvent

	// Hold keeps the stream open after Events until ctx is cancelled.
	Hold bool

	// Err is returned by Send instead of a response.
	Err error

	mu       sync.Mutex
	requests []llm.ChatRequest
}

// Send records req and returns the configured response.
func (s *StaticSender) Send(ctx context.Context, _ string, req *llm.ChatRequest) (*http.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, *req)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	status := s.Status
	if status == 0 {
		status = http.StatusOK
	}

	resp := &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
	}

	if s.Body != "" {
		resp.Body = io.NopCloser(strings.NewReader(s.Body))
		return resp, nil
	}

	pr, pw := io.Pipe()
	go func() {
		for _, ev := range s.Events {
			if ev.ConversationID == "" {
				ev.ConversationID = req.ConversationID
			}
			if ev.MessageID == "" {
				ev.MessageID = req.ResponseMessageID
			}
			if err := sse.WriteEvent(pw, ev); err != nil {
				return
			}
		}
		if s.Hold {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
			return
		}
		pw.Close()
	}()

	resp.Body = pr
	return resp, nil
}

// Requests returns the requests sent so far.
func (s *StaticSender) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatRequest(nil), s.requests...)
}
