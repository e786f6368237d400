// Package session drives one chat send or regenerate at a time: it stores
// the user and assistant messages, streams the reply through a
// chatclient.Sender and writes every delta back to the conversation store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/papercomputeco/chatstream/pkg/chatclient"
	"github.com/papercomputeco/chatstream/pkg/llm"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

var (
	// ErrEmptyInput is returned by Send for blank input.
	ErrEmptyInput = errors.New("message content cannot be empty")

	// ErrNoResponse is the warning set on a Result when the stream finished
	// without any content.
	ErrNoResponse = errors.New("no response received from the assistant")

	// ErrNotAssistantMessage is returned by Regenerate for user messages.
	ErrNotAssistantMessage = errors.New("only assistant messages can be regenerated")
)

// Update is passed to the update hook after every content event.
type Update struct {
	ConversationID string
	MessageID      string

	// Delta is the text carried by the event, Content the reply so far.
	Delta   string
	Content string
}

// Result describes a finished send or regenerate.
type Result struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string
	Content            string

	// Aborted is set when the stream was stopped before completion. The
	// assistant message keeps the partial content.
	Aborted bool

	// Warning is a non-fatal condition worth showing to the user, such as
	// ErrNoResponse or a failed store write.
	Warning error
}

// Option configures a Controller.
type Option func(*Controller)

// WithUpdateHook registers fn to be called after every content event, on
// the goroutine running Send or Regenerate.
func WithUpdateHook(fn func(Update)) Option {
	return func(c *Controller) {
		c.onUpdate = fn
	}
}

// WithIDGenerator replaces uuid based message and trace ids.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// WithReadOptions passes options to every chatclient.ReadStream call.
func WithReadOptions(opts ...chatclient.ReadOption) Option {
	return func(c *Controller) {
		c.readOpts = append(c.readOpts, opts...)
	}
}

// Controller owns the cancellation handle of the in-flight stream. Starting
// a new send or regenerate cancels the previous one.
type Controller struct {
	sender   chatclient.Sender
	store    storage.Driver
	logger   *slog.Logger
	newID    func() string
	onUpdate func(Update)
	readOpts []chatclient.ReadOption

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	gen     uint64
	lastErr error
}

// New creates a Controller.
func New(sender chatclient.Sender, store storage.Driver, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		sender: sender,
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send stores input as a user message followed by an empty assistant
// message, and streams the reply into the assistant message. A missing
// conversation is created. Aborts return a Result with Aborted set and a
// nil error.
func (c *Controller) Send(ctx context.Context, conversationID, input string) (*Result, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	conv, err := c.loadOrCreate(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	history := nonEmpty(conv.Messages)
	user := llm.NewChatMessage(c.newID(), llm.RoleUser, trimmed)
	assistant := llm.NewChatMessage(c.newID(), llm.RoleAssistant, "")

	if err := c.store.AppendMessage(ctx, conversationID, user); err != nil {
		return nil, fmt.Errorf("storing user message: %w", err)
	}
	if err := c.store.AppendMessage(ctx, conversationID, assistant); err != nil {
		return nil, fmt.Errorf("storing assistant message: %w", err)
	}

	outgoing := append(history, user)
	if conv.Title == storage.DefaultTitle {
		if title := storage.GenerateTitle(outgoing); title != storage.DefaultTitle {
			if err := c.store.Rename(ctx, conversationID, title); err != nil {
				c.logger.Warn("could not set conversation title", "conversation_id", conversationID, "error", err)
			}
		}
	}

	res, err := c.stream(ctx, &llm.ChatRequest{
		ConversationID:    conversationID,
		Messages:          outgoing,
		ResponseMessageID: assistant.ID,
	})
	if res != nil {
		res.UserMessageID = user.ID
	}
	return res, err
}

// Regenerate clears an assistant message and streams a new reply into it,
// sending the non-empty messages that precede it.
func (c *Controller) Regenerate(ctx context.Context, conversationID, messageID string) (*Result, error) {
	conv, err := c.store.Get(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	idx := -1
	for i, msg := range conv.Messages {
		if msg.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, storage.NotFoundError{ConversationID: conversationID, MessageID: messageID}
	}
	if conv.Messages[idx].Role != llm.RoleAssistant {
		return nil, ErrNotAssistantMessage
	}

	if err := c.store.ReplaceMessage(ctx, conversationID, messageID, ""); err != nil {
		return nil, fmt.Errorf("clearing message: %w", err)
	}

	return c.stream(ctx, &llm.ChatRequest{
		ConversationID:    conversationID,
		Messages:          nonEmpty(conv.Messages[:idx]),
		ResponseMessageID: messageID,
		Signals:           &llm.Signals{Regenerate: true},
	})
}

// Stop cancels the in-flight stream, if any. The stream ends as aborted.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	if c.state.Active() {
		c.state = StateAborted
	}
}

// IsStreaming reports whether a request is in flight.
func (c *Controller) IsStreaming() bool {
	return c.State().Active()
}

// State returns the phase of the current or last action.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error of the last failed action. Aborts and
// successful actions clear it.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) loadOrCreate(ctx context.Context, id string) (*llm.Conversation, error) {
	conv, err := c.store.Get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}

	conv = storage.NewConversation(id)
	if err := c.store.Put(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// begin cancels any in-flight stream and installs a new handle.
func (c *Controller) begin(ctx context.Context) (context.Context, context.CancelFunc, uint64) {
	streamCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	c.cancel = cancel
	c.state = StateRequesting
	c.lastErr = nil
	return streamCtx, cancel, c.gen
}

func (c *Controller) setState(gen uint64, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen && c.state.Active() {
		c.state = s
	}
}

func (c *Controller) stream(ctx context.Context, req *llm.ChatRequest) (*Result, error) {
	streamCtx, cancel, gen := c.begin(ctx)
	defer cancel()

	traceID := c.newID()
	log := c.logger.With(
		"trace_id", traceID,
		"conversation_id", req.ConversationID,
		"message_id", req.ResponseMessageID,
	)

	res := &Result{
		ConversationID:     req.ConversationID,
		AssistantMessageID: req.ResponseMessageID,
	}

	resp, err := c.sender.Send(streamCtx, traceID, req)
	if err != nil {
		return c.finish(gen, log, res, err)
	}
	c.setState(gen, StateStreaming)

	var content strings.Builder
	var storeErr error
	handler := func(ev llm.StreamEvent) bool {
		if ev.MessageID != req.ResponseMessageID {
			return false
		}

		if ev.Content != "" {
			content.WriteString(ev.Content)
			// The store write uses the caller's context so a stop does not
			// lose the partial reply.
			if err := c.store.ReplaceMessage(ctx, req.ConversationID, req.ResponseMessageID, content.String()); err != nil && storeErr == nil {
				storeErr = err
				log.Warn("could not store streamed content", "error", err)
			}
			if c.onUpdate != nil {
				c.onUpdate(Update{
					ConversationID: req.ConversationID,
					MessageID:      req.ResponseMessageID,
					Delta:          ev.Content,
					Content:        content.String(),
				})
			}
		}

		return ev.Done
	}

	opts := append([]chatclient.ReadOption{chatclient.WithLogger(log)}, c.readOpts...)
	err = chatclient.ReadStream(streamCtx, resp, handler, opts...)
	res.Content = content.String()
	if storeErr != nil {
		res.Warning = fmt.Errorf("saving reply: %w", storeErr)
	}
	return c.finish(gen, log, res, err)
}

func (c *Controller) finish(gen uint64, log *slog.Logger, res *Result, err error) (*Result, error) {
	state := StateCompleted
	switch {
	case err != nil && llm.IsAborted(err):
		log.Debug("stream aborted", "content_length", len(res.Content))
		res.Aborted = true
		state = StateAborted
		err = nil

	case err != nil:
		log.Error("stream failed", "error", err)
		state = StateFailed

	case res.Content == "":
		// Leave the message explicitly empty rather than whatever was there.
		if err := c.store.ReplaceMessage(context.Background(), res.ConversationID, res.AssistantMessageID, ""); err != nil {
			log.Warn("could not clear empty reply", "error", err)
		}
		res.Warning = ErrNoResponse
		log.Warn("stream completed without content")

	default:
		log.Debug("stream completed", "content_length", len(res.Content))
	}

	c.mu.Lock()
	if gen == c.gen {
		c.cancel = nil
		c.state = state
		c.lastErr = err
	}
	c.mu.Unlock()

	return res, err
}

func nonEmpty(messages []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !msg.IsBlank() {
			out = append(out, msg)
		}
	}
	return out
}
