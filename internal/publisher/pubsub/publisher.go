// Package pubsub publishes events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/JakeFAU/recipe-ingest/internal/publisher"
)

// Publisher sends events to one topic.
type Publisher struct {
	topic *pubsub.Topic
}

var _ publisher.Publisher = (*Publisher)(nil)

// New binds a Publisher to topicID on client.
func New(client *pubsub.Client, topicID string) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if strings.TrimSpace(topicID) == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	return &Publisher{topic: client.Topic(topicID)}, nil
}

// Publish encodes the event and waits for the server-assigned message id.
func (p *Publisher) Publish(ctx context.Context, event publisher.Event) (string, error) {
	data, attrs, err := publisher.Encode(event)
	if err != nil {
		return "", err
	}
	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish %s: %w", event.Name, err)
	}
	return id, nil
}

// Stop flushes pending messages and stops the topic's background goroutines.
func (p *Publisher) Stop() {
	p.topic.Stop()
}
