// Package header manages the headers of the chat endpoint's responses.
//
//	Client <--> Proxy <--> Upstream LLM Provider
//
// The client leg carries the normalized event stream and the trace id that
// ties client and server logs together. The upstream leg builds its own
// headers in pkg/upstream.
package header

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TraceIDHeader carries the per-session trace id between client and proxy.
const TraceIDHeader = "X-Trace-Id"

// maxTraceIDLength caps client supplied trace ids before they reach the logs.
const maxTraceIDLength = 128

// Handler manages headers between proxy connections.
type Handler struct {
	newID func() string
}

// NewHandler creates a new header Handler.
func NewHandler() *Handler {
	return &Handler{newID: uuid.NewString}
}

// streamHeaders are set on every successful chat response.
var streamHeaders = map[string]string{
	fiber.HeaderContentType:  "text/event-stream",
	fiber.HeaderCacheControl: "no-cache",
	fiber.HeaderConnection:   "keep-alive",

	// Ask buffering reverse proxies (nginx) to pass chunks straight through.
	"X-Accel-Buffering": "no",
}

// TraceID returns the trace id sent by the client, or a fresh one when the
// header is missing or unusable.
func (h *Handler) TraceID(c *fiber.Ctx) string {
	id := strings.TrimSpace(c.Get(TraceIDHeader))
	if id == "" || len(id) > maxTraceIDLength || strings.ContainsAny(id, "\r\n") {
		return h.newID()
	}
	return id
}

// SetStreamHeaders marks the response as a non-cacheable event stream and
// echoes the trace id.
func (h *Handler) SetStreamHeaders(c *fiber.Ctx, traceID string) {
	for k, v := range streamHeaders {
		c.Set(k, v)
	}
	h.SetTraceHeader(c, traceID)
}

// SetTraceHeader echoes the trace id on any response, including errors.
func (h *Handler) SetTraceHeader(c *fiber.Ctx, traceID string) {
	if traceID != "" {
		c.Set(TraceIDHeader, traceID)
	}
}
