package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GooglePublisherConfig names the topic mutation events are published to.
type GooglePublisherConfig struct {
	TopicID string
	// ResultTimeout bounds the background wait for each publish result.
	ResultTimeout time.Duration
}

// GooglePublisher publishes mutation events to Pub/Sub as JSON.
type GooglePublisher struct {
	topic         *pubsub.Topic
	resultTimeout time.Duration
	logger        zerolog.Logger
}

// NewGooglePublisher creates a publisher. It verifies that the topic exists
// before returning.
func NewGooglePublisher(ctx context.Context, cfg *GooglePublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePublisher, error) {
	if cfg == nil {
		return nil, errors.New("publisher config cannot be nil")
	}
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	timeout := cfg.ResultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GooglePublisher{
		topic:         topic,
		resultTimeout: timeout,
		logger:        logger.With().Str("component", "GooglePublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish queues the event and returns. The publish result is logged in the
// background so a slow broker never delays the mutation's caller.
func (p *GooglePublisher) Publish(ctx context.Context, event MutationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation event %s: %w", event.ID, err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"operation":  event.Operation,
			"collection": event.Collection,
		},
	})

	go func() {
		// A fresh context keeps a short-lived caller context from cancelling the wait.
		getCtx, cancel := context.WithTimeout(context.Background(), p.resultTimeout)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			p.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish mutation event.")
			return
		}
		p.logger.Debug().Str("published_msg_id", msgID).Str("event_id", event.ID).Msg("Mutation event published.")
	}()

	return nil
}

// Stop flushes pending messages for the topic, respecting the context's timeout.
func (p *GooglePublisher) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}

	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
