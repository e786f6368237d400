package sse

import (
	"bytes"
)

type frameState int

const (
	awaitingFrameStart frameState = iota
	accumulatingFrame
	frameComplete
	streamDone
)

var dataPrefix = []byte("data:")

// FrameReader reassembles SSE frames from bytes delivered in arbitrary pieces.
//
// Bytes are appended with Feed and complete frames are drained with Next.
// A "data:" payload that starts with '{' or '[' is only complete once its
// bracket depth returns to zero, so JSON values that contain newlines or blank
// lines survive intact and the bare [DONE] sentinel completes at its closing
// bracket without waiting for a line break. Other payloads end at the line
// break. Bytes are converted to strings
// only once a frame is complete, so multi-byte UTF-8 sequences split across
// deliveries are never broken.
//
// A FrameReader is owned by a single stream and is not safe for concurrent use.
type FrameReader struct {
	buf   []byte
	state frameState

	// annotations for the frame being built
	eventType string
	id        string

	// bracket scan state, valid while accumulatingFrame
	payloadStart int
	pos          int
	depth        int
	inString     bool
	escaped      bool

	pending *Event
}

// NewFrameReader returns an empty FrameReader awaiting its first frame.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// Feed appends newly received bytes to the reassembly buffer.
// Bytes fed after Flush are ignored.
func (r *FrameReader) Feed(p []byte) {
	if r.state == streamDone {
		return
	}
	r.buf = append(r.buf, p...)
}

// Next returns the next complete frame. It returns false when more bytes are
// needed; the partial remainder stays buffered for the next Feed.
func (r *FrameReader) Next() (*Event, bool) {
	for {
		switch r.state {
		case streamDone:
			return nil, false

		case awaitingFrameStart:
			if !r.startFrame() {
				return nil, false
			}

		case accumulatingFrame:
			if !r.scanObject() {
				return nil, false
			}

		case frameComplete:
			ev := r.pending
			r.pending = nil
			r.eventType = ""
			r.id = ""
			r.state = awaitingFrameStart
			return ev, true
		}
	}
}

// Flush is called once the source is exhausted. It resolves whatever remains
// in the buffer into at most one final frame: an unterminated line is treated
// as terminated, and an unbalanced JSON value is returned raw so the caller
// can decide what to do with it. The reader accepts no further input.
func (r *FrameReader) Flush() (*Event, bool) {
	if r.state == streamDone {
		return nil, false
	}

	r.buf = append(r.buf, '\n')
	ev, ok := r.Next()
	if !ok && r.state == accumulatingFrame {
		data := bytes.TrimSpace(r.buf[r.payloadStart:])
		if len(data) > 0 {
			ev = &Event{Type: r.eventType, ID: r.id, Data: string(data)}
			ok = true
		}
	}

	r.state = streamDone
	r.buf = nil
	r.pending = nil
	return ev, ok
}

// Buffered returns the number of bytes not yet resolved into a frame.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// startFrame consumes separators, comments and non-data fields until a
// "data:" payload begins. It returns false when more bytes are needed.
func (r *FrameReader) startFrame() bool {
	for {
		r.buf = bytes.TrimLeft(r.buf, " \t\r\n")
		if len(r.buf) == 0 {
			return false
		}

		if !bytes.HasPrefix(r.buf, dataPrefix) {
			// Field lines, comments and partial "data" markers all need a
			// full line before they can be interpreted.
			nl := bytes.IndexByte(r.buf, '\n')
			if nl < 0 {
				return false
			}
			r.parseField(bytes.TrimRight(r.buf[:nl], "\r"))
			r.buf = r.buf[nl+1:]
			continue
		}

		i := len(dataPrefix)
		for i < len(r.buf) && (r.buf[i] == ' ' || r.buf[i] == '\t') {
			i++
		}
		if i == len(r.buf) {
			return false
		}

		switch r.buf[i] {
		case '\r', '\n':
			// empty data line
			nl := bytes.IndexByte(r.buf[i:], '\n')
			if nl < 0 {
				return false
			}
			r.buf = r.buf[i+nl+1:]
			continue

		case '{', '[':
			r.payloadStart = i
			r.pos = i
			r.depth = 0
			r.inString = false
			r.escaped = false
			r.state = accumulatingFrame
			return true

		default:
			nl := bytes.IndexByte(r.buf[i:], '\n')
			if nl < 0 {
				return false
			}
			line := bytes.TrimRight(r.buf[i:i+nl], "\r")
			r.pending = &Event{Type: r.eventType, ID: r.id, Data: string(line)}
			r.buf = r.buf[i+nl+1:]
			r.state = frameComplete
			return true
		}
	}
}

// scanObject advances through a bracketed payload, tracking the combined
// depth of braces and square brackets and string/escape state. It returns
// false when the payload is still unbalanced.
func (r *FrameReader) scanObject() bool {
	for ; r.pos < len(r.buf); r.pos++ {
		c := r.buf[r.pos]

		if r.inString {
			switch {
			case r.escaped:
				r.escaped = false
			case c == '\\':
				r.escaped = true
			case c == '"':
				r.inString = false
			}
			continue
		}

		switch c {
		case '"':
			r.inString = true
		case '{', '[':
			r.depth++
		case '}', ']':
			r.depth--
			if r.depth == 0 {
				end := r.pos + 1
				r.pending = &Event{
					Type: r.eventType,
					ID:   r.id,
					Data: string(r.buf[r.payloadStart:end]),
				}
				r.buf = r.buf[end:]
				r.payloadStart = 0
				r.pos = 0
				r.state = frameComplete
				return true
			}
		}
	}

	return false
}

// parseField records "event:" and "id:" annotations. Comments (lines starting
// with ':') and unknown fields are ignored.
func (r *FrameReader) parseField(line []byte) {
	if len(line) == 0 || line[0] == ':' {
		return
	}

	field, value, _ := bytes.Cut(line, []byte(":"))
	value = bytes.TrimPrefix(value, []byte(" "))

	switch string(field) {
	case "event":
		r.eventType = string(value)
	case "id":
		r.id = string(value)
	}
}
