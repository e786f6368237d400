package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/llm/provider"
	"github.com/papercomputeco/chatstream/pkg/sse"
)

// readBufferSize is the size of each upstream read.
const readBufferSize = 32 * 1024

// errStreamDone stops the frame loop after a terminal frame.
var errStreamDone = errors.New("stream done")

// ReframeStats summarizes one Run.
type ReframeStats struct {
	ContentEvents int
	SkippedFrames int
	Content       string
}

// Reframer converts one upstream provider stream into the normalized event
// stream for a single (conversation, message) pair. It owns its frame buffer
// and parser for the duration of Run and must not be reused.
type Reframer struct {
	conversationID string
	messageID      string
	parser         provider.ChunkParser
	logger         *slog.Logger

	frames     *sse.FrameReader
	content    strings.Builder
	stats      ReframeStats
	terminated bool
}

// NewReframer creates a Reframer. The parser is reset before use.
func NewReframer(conversationID, messageID string, parser provider.ChunkParser, logger *slog.Logger) *Reframer {
	return &Reframer{
		conversationID: conversationID,
		messageID:      messageID,
		parser:         parser,
		logger:         logger,
		frames:         sse.NewFrameReader(),
	}
}

// Run reads src until the provider signals completion, src ends, or ctx is
// cancelled, writing normalized events to dst as frames complete.
//
// Exactly one terminal event is written on every path where dst is still
// writable. A read failure yields *llm.TransportError and cancellation yields
// an error matching llm.ErrAborted, both after the terminal event.
func (r *Reframer) Run(ctx context.Context, src io.Reader, dst io.Writer) error {
	r.parser.Reset()
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return r.abort(dst, err)
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			r.frames.Feed(buf[:n])
			if err := r.drain(dst); err != nil {
				if errors.Is(err, errStreamDone) {
					return r.finish(dst)
				}
				return err
			}
		}

		switch {
		case readErr == nil:
			continue

		case errors.Is(readErr, io.EOF):
			if ev, ok := r.frames.Flush(); ok {
				if err := r.handleFrame(ev, dst); err != nil && !errors.Is(err, errStreamDone) {
					return err
				}
			}
			return r.finish(dst)

		case ctx.Err() != nil:
			return r.abort(dst, ctx.Err())

		default:
			r.logger.Error("upstream stream read failed", "error", readErr)
			if err := r.finish(dst); err != nil {
				r.logger.Debug("terminal event not delivered", "error", err)
			}
			return &llm.TransportError{Err: readErr}
		}
	}
}

// Stats returns the counters collected so far.
func (r *Reframer) Stats() ReframeStats {
	stats := r.stats
	stats.Content = r.content.String()
	return stats
}

// drain handles every complete frame currently buffered.
func (r *Reframer) drain(dst io.Writer) error {
	for {
		ev, ok := r.frames.Next()
		if !ok {
			return nil
		}
		if err := r.handleFrame(ev, dst); err != nil {
			return err
		}
	}
}

// handleFrame parses one frame and emits its content. It returns
// errStreamDone once the stream is complete.
func (r *Reframer) handleFrame(ev *sse.Event, dst io.Writer) error {
	if ev.IsDone() {
		return errStreamDone
	}

	payload := []byte(ev.Data)
	if !r.parser.CanParse(payload) {
		r.stats.SkippedFrames++
		r.logger.Debug("skipping unparseable frame",
			"parser", r.parser.Name(),
			"event", ev.Type,
			"bytes", len(payload),
		)
		return nil
	}

	res, err := r.parser.Parse(payload)
	if err != nil {
		r.stats.SkippedFrames++
		r.logger.Warn("skipping malformed frame", "parser", r.parser.Name(), "error", err)
		return nil
	}

	if res.Content != "" {
		if err := r.emit(llm.StreamEvent{
			ConversationID: r.conversationID,
			MessageID:      r.messageID,
			Content:        res.Content,
		}, dst); err != nil {
			return err
		}
		r.stats.ContentEvents++
		r.content.WriteString(res.Content)
	}

	if res.Done {
		return errStreamDone
	}
	return nil
}

// finish writes the terminal event if it has not been written yet.
func (r *Reframer) finish(dst io.Writer) error {
	if r.terminated {
		return nil
	}
	r.terminated = true

	return r.emit(llm.StreamEvent{
		ConversationID: r.conversationID,
		MessageID:      r.messageID,
		Done:           true,
	}, dst)
}

func (r *Reframer) abort(dst io.Writer, cause error) error {
	if err := r.finish(dst); err != nil {
		r.logger.Debug("terminal event not delivered", "error", err)
	}
	return fmt.Errorf("%w: %w", llm.ErrAborted, cause)
}

func (r *Reframer) emit(ev llm.StreamEvent, dst io.Writer) error {
	if err := sse.WriteEvent(dst, ev); err != nil {
		return fmt.Errorf("writing stream event: %w", err)
	}
	return nil
}
