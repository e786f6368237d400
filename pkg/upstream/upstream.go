// Package upstream sends chat completion requests to the OpenAI-compatible
// provider that backs the chat endpoint.
package upstream

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
	"time"

	"github.com/papercomputeco/chatstream/pkg/llm"
)

const (
	DefaultURL          = "https://nano-gpt.com/api/v1"
	DefaultModel        = "openai/gpt-oss-120b"
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTimeout      = 30 * time.Second
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 10000

	completionsPath = "/chat/completions"

	// maxErrorBody caps how much of a failed response is read for its message.
	maxErrorBody = 64 * 1024
)

// ErrTimeout is the cancellation cause when the request phase outlives
// Options.Timeout. Errors caused by it also match llm.ErrAborted.
var ErrTimeout = errors.New("upstream request timed out")

// Options are the per request parameters of a completion.
type Options struct {
	Model        string
	SystemPrompt string

	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64

	// Timeout bounds the request phase, up to the response headers.
	Timeout time.Duration

	// Logger overrides the client logger, typically with a trace scoped one.
	Logger *slog.Logger
}

// DefaultOptions returns the sampling parameters used when none are configured.
func DefaultOptions() Options {
	return Options{
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  DefaultTemperature,
		MaxTokens:    DefaultMaxTokens,
		TopP:         1,
		Timeout:      DefaultTimeout,
	}
}

// Client issues streaming completion requests with a bearer token.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the provider at baseURL. An empty baseURL
// uses DefaultURL and a nil httpClient uses a client without a global
// timeout, since streamed responses are long lived.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + completionsPath,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Endpoint returns the full completions URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Send posts messages, preceded by the system prompt, and returns the raw
// streaming response on a 2xx status. The caller must close the response
// body, which also releases the request context.
//
// Failures are typed: llm.ErrUnauthorized without an apiKey,
// *llm.UpstreamError for non-2xx responses, an error matching llm.ErrAborted
// on timeout or ctx cancellation, and *llm.TransportError otherwise.
func (c *Client) Send(ctx context.Context, apiKey string, messages []llm.Message, opts Options) (*http.Response, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, llm.ErrUnauthorized
	}

	opts = withDefaults(opts)
	log := c.logger
	if opts.Logger != nil {
		log = opts.Logger
	}

	body, err := json.Marshal(buildRequest(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(opts.Timeout, func() {
		cancel(ErrTimeout)
	})
	defer timer.Stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	log.Info("sending upstream completion request",
		"model", opts.Model,
		"max_tokens", opts.MaxTokens,
		"messages", len(messages)+1,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	timer.Stop()
	if err != nil {
		cause := context.Cause(reqCtx)
		cancel(nil)
		if cause != nil {
			log.Debug("upstream request aborted", "cause", cause)
			return nil, fmt.Errorf("%w: %w", llm.ErrAborted, cause)
		}
		log.Error("upstream request failed", "error", err)
		return nil, &llm.TransportError{Err: err}
	}

	log.Info("upstream responded",
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel(nil)
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := llm.ExtractErrorMessage(raw, resp.StatusCode)
		log.Error("upstream returned error", "status", resp.StatusCode, "message", msg)
		return nil, llm.NewUpstreamError(resp.StatusCode, msg)
	}

	// The timer may have fired after headers arrived but before it was stopped.
	if cause := context.Cause(reqCtx); cause != nil {
		resp.Body.Close()
		cancel(nil)
		return nil, fmt.Errorf("%w: %w", llm.ErrAborted, cause)
	}

	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func withDefaults(opts Options) Options {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return opts
}

func buildRequest(messages []llm.Message, opts Options) llm.CompletionRequest {
	all := make([]llm.Message, 0, len(messages)+1)
	all = append(all, llm.Message{Role: llm.RoleSystem, Content: opts.SystemPrompt})
	all = append(all, messages...)

	return llm.CompletionRequest{
		Model:            opts.Model,
		Messages:         all,
		Stream:           true,
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             opts.TopP,
		FrequencyPenalty: opts.FrequencyPenalty,
		PresencePenalty:  opts.PresencePenalty,
	}
}

// cancelOnClose releases the request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
	once   sync.Once
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() { b.cancel(nil) })
	return err
}
