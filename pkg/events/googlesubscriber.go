package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GoogleSubscriberConfig configures a GoogleSubscriber.
type GoogleSubscriberConfig struct {
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// DefaultGoogleSubscriberConfig returns settings suited to the low volume of
// one user's mutations.
func DefaultGoogleSubscriberConfig(subID string) *GoogleSubscriberConfig {
	return &GoogleSubscriberConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          2,
	}
}

// GoogleSubscriber receives mutation events from a Pub/Sub subscription and
// hands each to a Handler. Messages that are not mutation events are acked
// and dropped; a Handler error nacks the message.
type GoogleSubscriber struct {
	subscription *pubsub.Subscription
	logger       zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	doneChan chan struct{}
}

func NewGoogleSubscriber(ctx context.Context, cfg *GoogleSubscriberConfig, client *pubsub.Client, logger zerolog.Logger) (*GoogleSubscriber, error) {
	if cfg == nil || cfg.SubscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check existence of subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	return &GoogleSubscriber{
		subscription: sub,
		logger:       logger.With().Str("component", "GoogleSubscriber").Str("subscription_id", cfg.SubscriptionID).Logger(),
		doneChan:     make(chan struct{}),
	}, nil
}

// Start receives in a background goroutine until ctx is done or Stop is called.
func (s *GoogleSubscriber) Start(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errors.New("handler cannot be nil")
	}
	receiveCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.doneChan)
		s.logger.Info().Msg("Receiving mutation events.")
		err := s.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			var event MutationEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				s.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping message that is not a mutation event.")
				msg.Ack()
				return
			}
			if err := handle(ctx, event); err != nil {
				if errors.Is(err, ErrUnprocessable) {
					s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Dropping mutation event that cannot be applied.")
					msg.Ack()
					return
				}
				s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to handle mutation event, nacking.")
				msg.Nack()
				return
			}
			msg.Ack()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		}
		s.logger.Info().Msg("Stopped receiving mutation events.")
	}()
	return nil
}

// Stop cancels receiving and waits for in-flight handlers, up to ctx's deadline.
func (s *GoogleSubscriber) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.cancel == nil {
			close(s.doneChan)
			return
		}
		s.cancel()
		select {
		case <-s.doneChan:
		case <-ctx.Done():
			err = fmt.Errorf("timed out waiting for subscriber to stop: %w", ctx.Err())
		}
	})
	return err
}

func (s *GoogleSubscriber) Done() <-chan struct{} { return s.doneChan }
