package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
)

// PubSubTransport publishes dispatch messages to a Cloud Pub/Sub topic.
type PubSubTransport struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubTransport connects to the project and binds the dispatch topic.
// The topic is expected to exist; topic creation belongs to infrastructure.
func NewPubSubTransport(ctx context.Context, projectID, topicID string) (*PubSubTransport, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	return &PubSubTransport{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

func (t *PubSubTransport) TopicPath() string {
	return t.topic.String()
}

// Publish sends one message and blocks until the server acknowledges it or
// ctx expires. The returned id is the server-assigned message id.
func (t *PubSubTransport) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	res := t.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := res.Get(ctx)
	if err != nil {
		slog.Warn("pubsub publish failed", "topic", t.topic.String(), "error", err)
		return "", err
	}
	return id, nil
}

// Close stops the topic's publish goroutines and releases the client.
func (t *PubSubTransport) Close() error {
	t.topic.Stop()
	return t.client.Close()
}
