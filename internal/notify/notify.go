// Package notify publishes sync lifecycle events to a message broker.
package notify

import (
	"context"
)

// Publisher defines the common interface for an event publisher.
type Publisher interface {
	// Publish sends the payload to the named topic and returns the broker's
	// message ID.
	Publish(ctx context.Context, topic string, payload any) (string, error)

	// Close releases broker resources.
	Close() error
}

// NoOpPublisher is a publisher that performs no operations. It is useful when
// event publishing is disabled.
type NoOpPublisher struct{}

// Publish for NoOpPublisher does nothing and reports an empty ID.
func (n *NoOpPublisher) Publish(_ context.Context, _ string, _ any) (string, error) {
	return "", nil
}

// Close for NoOpPublisher does nothing.
func (n *NoOpPublisher) Close() error { return nil }
