// Package sse provides the SSE (Server-Sent Events) framing used by the
// chatstream proxy: a FrameReader that reassembles upstream provider frames
// from arbitrarily split byte deliveries, and WriteEvent for emitting the
// normalized event stream to clients.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// DoneSentinel is the bare payload providers send to mark the end of a stream.
const DoneSentinel = "[DONE]"

// Event represents a single reassembled SSE frame.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the payload following the "data:" marker. Payloads opening with
	// '{' or '[' are captured up to their matching closing bracket and may
	// contain raw newlines.
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}

// IsDone reports whether the frame carries the terminal sentinel.
func (e *Event) IsDone() bool {
	return e.Data == DoneSentinel
}
