// Package proxy serves the chat endpoint: it validates chat requests, sends
// them to the upstream provider and re-frames the provider's stream into the
// normalized event stream consumed by chat clients.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
	"github.com/papercomputeco/chatstream/pkg/eventstream/nop"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/llm/provider"
	"github.com/papercomputeco/chatstream/pkg/upstream"
	"github.com/papercomputeco/chatstream/proxy/header"
	"github.com/papercomputeco/chatstream/proxy/worker"
)

const (
	chatPath = "/api/chat"
	pingPath = "/ping"
)

// Proxy is the chat endpoint server. Each chat request is sent upstream and
// its stream re-framed on its own goroutine; completed streams are published
// asynchronously via the worker pool.
type Proxy struct {
	config        Config
	publisher     eventstream.Publisher
	workerPool    *worker.Pool
	logger        *slog.Logger
	upstream      *upstream.Client
	server        *fiber.App
	headerHandler *header.Handler

	// streamCtx parents every in-flight stream and is cancelled by Close.
	streamCtx     context.Context
	cancelStreams context.CancelFunc
}

// New creates a new Proxy.
// Returns an error if the configured provider type is not recognized.
func New(config Config, logger *slog.Logger) (*Proxy, error) {
	if config.ProviderType == "" {
		config.ProviderType = provider.OpenAI
	}
	if _, err := provider.New(config.ProviderType); err != nil {
		return nil, fmt.Errorf("could not create chunk parser: %w", err)
	}

	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = DefaultMaxMessageLength
	}

	publisher := config.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	// Compress everything except the event stream, which must reach the
	// client chunk by chunk.
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == chatPath
		},
	}))

	streamCtx, cancelStreams := context.WithCancel(context.Background())

	p := &Proxy{
		config:        config,
		publisher:     publisher,
		workerPool:    wp,
		logger:        logger,
		upstream:      upstream.NewClient(config.UpstreamURL, nil, logger),
		server:        app,
		headerHandler: header.NewHandler(),
		streamCtx:     streamCtx,
		cancelStreams: cancelStreams,
	}

	app.Post(chatPath, p.handleChat)
	app.Get(pingPath, p.handlePing)

	return p, nil
}

// Run starts the proxy server on the given listening address
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.upstream.Endpoint(),
		"provider", p.config.ProviderType,
	)

	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.upstream.Endpoint(),
		"provider", p.config.ProviderType,
	)

	return p.server.Listener(listener)
}

// Close cancels in-flight streams, shuts the server down and waits for the
// worker pool to drain before closing the publisher.
func (p *Proxy) Close() error {
	p.cancelStreams()
	shutdownErr := p.server.Shutdown()
	p.workerPool.Close()
	return errors.Join(shutdownErr, p.publisher.Close())
}

func (p *Proxy) handlePing(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleChat validates the chat request, opens the upstream stream and hands
// it to a re-framing goroutine writing into the response body.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	startTime := time.Now()
	traceID := p.headerHandler.TraceID(c)
	log := p.logger.With("trace_id", traceID)
	p.headerHandler.SetTraceHeader(c, traceID)

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return p.fail(c, log, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
	}
	if err := validateChatRequest(&req, p.config.MaxMessageLength); err != nil {
		return p.fail(c, log, err)
	}

	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if req.ResponseMessageID == "" {
		req.ResponseMessageID = uuid.NewString()
	}
	log = log.With(
		"conversation_id", req.ConversationID,
		"message_id", req.ResponseMessageID,
	)

	parser, err := provider.New(p.config.ProviderType)
	if err != nil {
		return p.fail(c, log, err)
	}

	log.Debug("chat request accepted",
		"messages", len(req.Messages),
		"regenerate", req.IsRegenerate(),
	)

	opts := p.config.Upstream
	opts.Logger = log

	// Use a context detached from the fiber request because fasthttp recycles
	// its RequestCtx after the handler returns, while the stream is consumed
	// on a separate goroutine.
	ctx, cancel := context.WithCancel(p.streamCtx)
	resp, err := p.upstream.Send(ctx, p.config.APIKey, llm.ToUpstream(req.Messages), opts)
	if err != nil {
		cancel()
		return p.fail(c, log, err)
	}

	p.headerHandler.SetStreamHeaders(c, traceID)

	// io.Pipe gives direct backpressure: pw.Write blocks until fasthttp's
	// chunked body writer has consumed the event and flushed it to the socket.
	pr, pw := io.Pipe()
	rf := NewReframer(req.ConversationID, req.ResponseMessageID, parser, log)
	go p.streamResponse(ctx, cancel, resp, pw, rf, &req, traceID, startTime, log)

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// streamResponse runs the re-framer until the upstream stream ends and
// enqueues the completed stream event.
func (p *Proxy) streamResponse(
	ctx context.Context,
	cancel context.CancelFunc,
	resp *http.Response,
	pw *io.PipeWriter,
	rf *Reframer,
	req *llm.ChatRequest,
	traceID string,
	startTime time.Time,
	log *slog.Logger,
) {
	defer cancel()
	defer resp.Body.Close()
	defer pw.Close()

	runErr := rf.Run(ctx, resp.Body, pw)
	stats := rf.Stats()

	outcome := eventstream.OutcomeCompleted
	switch {
	case runErr == nil:
		log.Info("stream completed",
			"content_events", stats.ContentEvents,
			"skipped_frames", stats.SkippedFrames,
			"duration", time.Since(startTime),
		)
	case llm.IsAborted(runErr):
		outcome = eventstream.OutcomeAborted
		log.Info("stream aborted", "content_events", stats.ContentEvents)
	default:
		outcome = eventstream.OutcomeTransportError
		log.Error("stream failed", "error", runErr, "content_events", stats.ContentEvents)
	}

	completedAt := time.Now()
	event := &eventstream.StreamCompletedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeStreamCompleted,
		EventID:       uuid.NewString(),
		EmittedAt:     completedAt,
		Source: eventstream.EventSource{
			Provider: p.config.ProviderType,
			Model:    p.config.Upstream.Model,
			Upstream: p.upstream.Endpoint(),
			Project:  p.config.Project,
		},
		RequestMeta: eventstream.StreamRequestMeta{
			TraceID:     traceID,
			StartedAt:   startTime,
			CompletedAt: completedAt,
			DurationMs:  completedAt.Sub(startTime).Milliseconds(),
			Regenerate:  req.IsRegenerate(),
			Messages:    len(req.Messages),
		},
		Stream: eventstream.StreamSummary{
			ConversationID: req.ConversationID,
			MessageID:      req.ResponseMessageID,
			ContentEvents:  stats.ContentEvents,
			SkippedFrames:  stats.SkippedFrames,
			Content:        stats.Content,
			Outcome:        outcome,
		},
	}
	if runErr != nil {
		event.Stream.Error = runErr.Error()
	}

	p.workerPool.Enqueue(worker.Job{Event: event})
}

// fail writes err as a JSON {message} body with the status it carries.
func (p *Proxy) fail(c *fiber.Ctx, log *slog.Logger, err error) error {
	status := llm.StatusCode(err)

	if llm.IsAborted(err) {
		log.Warn("chat request aborted", "error", err)
	} else {
		log.Error("chat request failed", "status", status, "error", err)
	}

	return c.Status(status).JSON(llm.ErrorResponse{Message: err.Error()})
}
