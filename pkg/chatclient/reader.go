package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

const (
	eventBoundary = "\n\n"
	dataMarker    = "data:"

	readChunkSize = 4096
	maxErrorBody  = 64 * 1024
)

// Handler receives each decoded event in arrival order. Returning true stops
// the read immediately.
type Handler func(llm.StreamEvent) bool

// ReadOption configures ReadStream.
type ReadOption func(*readConfig)

type readConfig struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for dropped events.
func WithLogger(l *slog.Logger) ReadOption {
	return func(c *readConfig) {
		c.logger = l
	}
}

// ReadStream consumes a normalized event stream and invokes handler per event
// until the handler asks to stop or the stream ends.
//
// A non-2xx status or a missing body fails with *llm.UpstreamError carrying
// the message extracted from the response. Cancelling ctx unblocks a pending
// read and yields an error matching llm.ErrAborted. resp.Body is closed
// exactly once on every path.
func ReadStream(ctx context.Context, resp *http.Response, handler Handler, opts ...ReadOption) error {
	cfg := &readConfig{logger: logger.Nop()}
	for _, opt := range opts {
		opt(cfg)
	}

	if resp == nil {
		return errors.New("nil response")
	}

	body := &onceCloser{ReadCloser: resp.Body}
	if resp.Body == nil || resp.Body == http.NoBody || resp.StatusCode < 200 || resp.StatusCode > 299 {
		var raw []byte
		if resp.Body != nil {
			raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			body.Close()
		}
		return llm.NewUpstreamError(resp.StatusCode, llm.ExtractErrorMessage(raw, resp.StatusCode))
	}
	defer body.Close()

	// Closing the body is the only way to interrupt a blocked Read.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	r := &streamReader{handler: handler, logger: cfg.logger}
	chunk := make([]byte, readChunkSize)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			r.append(chunk[:n])
			if r.consume(false) {
				return nil
			}
		}

		switch {
		case err == nil:
			continue

		case ctx.Err() != nil:
			return fmt.Errorf("%w: %w", llm.ErrAborted, ctx.Err())

		case errors.Is(err, io.EOF):
			r.consume(true)
			return nil

		default:
			return &llm.TransportError{Err: err}
		}
	}
}

// ConsumeBuffer delivers every complete event in buffer to handler and
// returns the unconsumed remainder. Events without a data line are skipped.
// An event whose payload does not decode is left at the front of the
// remainder and returned as a *llm.DecodeError so the caller can retry once
// more bytes arrive. stopped reports that the handler asked to stop.
func ConsumeBuffer(buffer string, handler Handler) (rest string, stopped bool, err error) {
	for {
		idx := strings.Index(buffer, eventBoundary)
		if idx < 0 {
			return buffer, false, nil
		}

		data := dataLine(buffer[:idx])
		if data == "" {
			buffer = buffer[idx+len(eventBoundary):]
			continue
		}

		var ev llm.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return buffer, false, &llm.DecodeError{Payload: data, Err: err}
		}

		buffer = buffer[idx+len(eventBoundary):]
		if handler(ev) {
			return buffer, true, nil
		}
	}
}

// dataLine returns the payload of the first data line of a raw event.
func dataLine(raw string) string {
	for line := range strings.SplitSeq(raw, "\n") {
		if payload, ok := strings.CutPrefix(line, dataMarker); ok {
			return strings.TrimSpace(payload)
		}
	}
	return ""
}

// streamReader owns the reassembly buffer of one ReadStream call.
type streamReader struct {
	buf     []byte
	handler Handler
	logger  *slog.Logger

	// retrying holds the payload of an event that failed to decode and is
	// waiting for one more attempt.
	retrying string
}

func (r *streamReader) append(p []byte) {
	r.buf = append(r.buf, p...)
	if bytes.IndexByte(r.buf, '\r') >= 0 {
		// A "\r\n" split across reads is joined here before normalizing.
		r.buf = bytes.ReplaceAll(r.buf, []byte("\r\n"), []byte("\n"))
	}
}

// consume drains complete events. On the final pass the remainder is treated
// as a complete event. It reports whether the handler asked to stop.
func (r *streamReader) consume(final bool) bool {
	buffer := string(r.buf)
	if final {
		if strings.TrimSpace(buffer) == "" {
			r.buf = nil
			return false
		}
		if !strings.HasSuffix(buffer, eventBoundary) {
			buffer += eventBoundary
		}
	}

	for {
		rest, stopped, err := ConsumeBuffer(buffer, r.handler)
		if stopped {
			r.buf = []byte(rest)
			return true
		}

		var decodeErr *llm.DecodeError
		if !errors.As(err, &decodeErr) {
			r.retrying = ""
			r.buf = []byte(rest)
			return false
		}

		if !final && r.retrying != decodeErr.Payload {
			r.retrying = decodeErr.Payload
			r.buf = []byte(rest)
			return false
		}

		// Second failure for the same event, or no more bytes will come.
		r.logger.Warn("dropping undecodable stream event", "error", decodeErr)
		r.retrying = ""
		idx := strings.Index(rest, eventBoundary)
		buffer = rest[idx+len(eventBoundary):]
	}
}

// onceCloser closes the underlying body at most once.
type onceCloser struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *onceCloser) Close() error {
	c.once.Do(func() {
		if c.ReadCloser != nil {
			c.err = c.ReadCloser.Close()
		}
	})
	return c.err
}
