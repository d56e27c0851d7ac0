// Package pubsub implements a Google Cloud Pub/Sub event publisher.
package pubsub

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	json "github.com/goccy/go-json"
)

// Publisher wraps a Pub/Sub client and publishes to per-topic handles.
type Publisher struct {
	client *pubsub.Client
}

// New creates a Publisher for the provided Pub/Sub client.
func New(client *pubsub.Client) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	return &Publisher{client: client}, nil
}

// Publish marshals the payload to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	handle := p.client.Topic(topic)
	defer handle.Stop()

	result := handle.Publish(ctx, &pubsub.Message{Data: data})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close closes the underlying Pub/Sub client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
