package invalidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/rs/zerolog"
)

// Invalidator is the part of the cache the Coordinator mutates.
type Invalidator interface {
	Invalidate(keys ...resource.Key) int
	Clear()
}

// IdentityFunc returns the id of the signed-in user, or "" when unknown.
type IdentityFunc func(ctx context.Context) string

// Coordinator applies the invalidations of committed mutations. It must only
// be called after the mutation's request succeeded.
type Coordinator struct {
	cache     Invalidator
	publisher events.Publisher
	identity  IdentityFunc
	origin    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCoordinator creates a Coordinator. A nil publisher disables event
// publishing. A nil identity leaves events without a user, and such a
// Coordinator applies no remote events.
func NewCoordinator(cache Invalidator, publisher events.Publisher, identity IdentityFunc, logger zerolog.Logger) (*Coordinator, error) {
	if cache == nil {
		return nil, errors.New("invalidator cannot be nil")
	}
	if identity == nil {
		identity = func(context.Context) string { return "" }
	}
	return &Coordinator{
		cache:     cache,
		publisher: publisher,
		identity:  identity,
		origin:    uuid.NewString(),
		logger:    logger.With().Str("component", "InvalidationCoordinator").Logger(),
		now:       time.Now,
	}, nil
}

// Apply invalidates the keys d affects, or clears the cache for a user delete,
// then publishes a MutationEvent. A publish failure is logged and does not
// fail Apply; the cache has already been reconciled.
func (c *Coordinator) Apply(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid mutation descriptor: %w", err)
	}

	event := events.MutationEvent{
		ID:         uuid.NewString(),
		Origin:     c.origin,
		UserID:     c.identity(ctx),
		Operation:  string(d.Operation),
		Collection: string(d.Collection),
		TargetID:   d.TargetID,
		OccurredAt: c.now().UTC(),
	}

	if d.ClearsAll() {
		c.cache.Clear()
		event.ClearedAll = true
		c.logger.Info().Str("mutation", d.String()).Msg("Cleared cache after cascading delete.")
	} else {
		keys := d.Invalidates()
		affected := c.cache.Invalidate(keys...)
		event.Invalidated = make([]string, 0, len(keys))
		for _, k := range keys {
			event.Invalidated = append(event.Invalidated, k.String())
		}
		c.logger.Debug().Str("mutation", d.String()).Int("affected", affected).Msg("Invalidated cache entries.")
	}

	if c.publisher != nil {
		if err := c.publisher.Publish(ctx, event); err != nil {
			c.logger.Warn().Err(err).Str("event_id", event.ID).Msg("Failed to publish mutation event.")
		}
	}
	return nil
}

// Origin identifies this Coordinator in the events it publishes.
func (c *Coordinator) Origin() string { return c.origin }

// ApplyRemote reconciles the cache with a mutation another process committed
// for the same user. The affected keys are derived from the event's operation
// again rather than taken from its Invalidated list. Events this Coordinator
// published itself, and events of another or an unknown user, are ignored.
// An event that can never be applied returns an error wrapping
// events.ErrUnprocessable.
func (c *Coordinator) ApplyRemote(ctx context.Context, event events.MutationEvent) error {
	if event.Origin == c.origin {
		return nil
	}
	d := Descriptor{
		Operation:  Operation(event.Operation),
		Collection: resource.Collection(event.Collection),
		TargetID:   event.TargetID,
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: remote mutation %s: %w", events.ErrUnprocessable, event.ID, err)
	}
	if user := c.identity(ctx); user == "" || event.UserID != user {
		c.logger.Debug().Str("event_id", event.ID).Str("event_user", event.UserID).Msg("Ignoring remote mutation of another user.")
		return nil
	}

	if d.ClearsAll() {
		c.cache.Clear()
		c.logger.Info().Str("event_id", event.ID).Str("origin", event.Origin).Msg("Cleared cache after remote account deletion.")
		return nil
	}
	affected := c.cache.Invalidate(d.Invalidates()...)
	c.logger.Debug().Str("event_id", event.ID).Str("mutation", d.String()).Int("affected", affected).Msg("Applied remote mutation.")
	return nil
}
