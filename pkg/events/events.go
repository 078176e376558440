// Package events publishes a record of every committed mutation so that other
// processes signed in as the same user can invalidate their own caches.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// MutationEvent describes a mutation the backend committed and the cache keys
// it invalidated.
type MutationEvent struct {
	ID string `json:"id"`
	// Origin identifies the process that performed the mutation, so that it
	// can skip its own events when they come back from the broker.
	Origin string `json:"origin"`
	// UserID is the subject of the credential the mutation was sent with.
	// Receivers only apply events of their own user.
	UserID      string    `json:"user_id,omitempty"`
	Operation   string    `json:"operation"`
	Collection  string    `json:"collection"`
	TargetID    string    `json:"target_id,omitempty"`
	Invalidated []string  `json:"invalidated"`
	ClearedAll  bool      `json:"cleared_all,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher hands mutation events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event MutationEvent) error
	// Stop flushes pending events, respecting the context's deadline.
	Stop(ctx context.Context) error
}

// ErrUnprocessable marks an event that can never be applied. Receivers drop
// such events instead of asking for redelivery.
var ErrUnprocessable = errors.New("unprocessable mutation event")

// Handler processes one received event. An error asks for redelivery unless
// it wraps ErrUnprocessable.
type Handler func(ctx context.Context, event MutationEvent) error

// LogPublisher writes events to the log. It is the default when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "LogPublisher").Logger()}
}

func (p *LogPublisher) Publish(_ context.Context, event MutationEvent) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("origin", event.Origin).
		Str("user_id", event.UserID).
		Str("operation", event.Operation).
		Str("collection", event.Collection).
		Str("target_id", event.TargetID).
		Strs("invalidated", event.Invalidated).
		Bool("cleared_all", event.ClearedAll).
		Msg("Mutation committed.")
	return nil
}

func (p *LogPublisher) Stop(context.Context) error { return nil }

// MultiPublisher fans every event out to several publishers.
type MultiPublisher []Publisher

// Publish hands event to every publisher and joins their errors.
func (m MultiPublisher) Publish(ctx context.Context, event MutationEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Stop(ctx context.Context) error {
	var errs []error
	for _, p := range m {
		if err := p.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
