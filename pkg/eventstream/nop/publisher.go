// Package nop provides the publisher used when no event stream is configured.
package nop

import (
	"context"

	"github.com/papercomputeco/chatstream/pkg/eventstream"
)

// Publisher discards events after validating them.
type Publisher struct{}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishStream rejects nil events and otherwise does nothing.
func (p *Publisher) PublishStream(_ context.Context, event *eventstream.StreamCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilStreamEvent
	}

	return nil
}

func (p *Publisher) Close() error {
	return nil
}
