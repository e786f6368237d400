package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when no usable upstream credential is
	// configured. It is fatal and never retried.
	ErrUnauthorized = errors.New("upstream API key is not configured")

	// ErrAborted indicates a user or timeout triggered cancellation. It is a
	// clean stop, not a failure.
	ErrAborted = errors.New("request aborted")
)

// UpstreamError is a non-2xx response from the upstream provider, or from the
// chat endpoint when observed by the client.
type UpstreamError struct {
	Status    int
	Message   string
	Retryable bool
}

// NewUpstreamError builds an UpstreamError, marking 429 and 5xx as retryable.
func NewUpstreamError(status int, message string) *UpstreamError {
	return &UpstreamError{
		Status:    status,
		Message:   message,
		Retryable: status == http.StatusTooManyRequests || status >= http.StatusInternalServerError,
	}
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// DecodeError is a malformed frame payload. It is recovered locally by the
// stream handlers and never terminates a stream on its own.
type DecodeError struct {
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TransportError is a network level failure before or during a stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAborted reports whether err is a cancellation rather than a failure.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether the operation that produced err may be retried.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable
	}

	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode maps an error to the HTTP status the chat endpoint responds
// with. Errors that carry no status map to 500.
func StatusCode(err error) int {
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}

	var ue *UpstreamError
	if errors.As(err, &ue) && ue.Status != 0 {
		return ue.Status
	}

	return http.StatusInternalServerError
}
