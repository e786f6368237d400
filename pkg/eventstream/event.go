package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamCompleted is emitted after the proxy finishes re-framing
	// one upstream stream, whatever its outcome.
	EventTypeStreamCompleted = "chatstream.stream.completed"
)

// Stream outcomes.
const (
	OutcomeCompleted      = "completed"
	OutcomeAborted        = "aborted"
	OutcomeTransportError = "transport_error"
)

// StreamCompletedEvent is a transport-neutral event payload for a finished stream.
type StreamCompletedEvent struct {
	SchemaVersion int               `json:"schema_version"`
	EventType     string            `json:"event_type"`
	EventID       string            `json:"event_id"`
	EmittedAt     time.Time         `json:"emitted_at"`
	Source        EventSource       `json:"source"`
	RequestMeta   StreamRequestMeta `json:"request_meta"`
	Stream        StreamSummary     `json:"stream"`
}

// EventSource identifies the upstream that produced the stream.
type EventSource struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Upstream string `json:"upstream,omitempty"`
	Project  string `json:"project,omitempty"`
}

// StreamRequestMeta captures request lifecycle metadata for the event.
type StreamRequestMeta struct {
	TraceID     string    `json:"trace_id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Regenerate  bool      `json:"regenerate"`
	Messages    int       `json:"messages"`
}

// StreamSummary describes what the re-framer emitted to the client.
type StreamSummary struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	ContentEvents  int    `json:"content_events"`
	SkippedFrames  int    `json:"skipped_frames"`
	Content        string `json:"content,omitempty"`
	Outcome        string `json:"outcome"`
	Error          string `json:"error,omitempty"`
}
