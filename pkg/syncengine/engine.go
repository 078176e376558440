// Package syncengine is the read/write façade presentation code uses: reads
// subscribe to cached state, mutations call the backend and reconcile the cache
// before returning.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/cache"
	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/illmade-knight/go-resourcesync/pkg/events"
	"github.com/illmade-knight/go-resourcesync/pkg/invalidation"
	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Engine owns the cache for one signed-in session. It is created at start-up
// and closed on full sign-out.
type Engine struct {
	store   *cache.Store
	coord   *invalidation.Coordinator
	sender  transport.Sender
	creds   credential.Provider
	metrics *metrics.Collectors
	logger  zerolog.Logger

	unsubscribeCreds func()
}

// New creates an Engine. When creds reports that the credential went away the
// cache is cleared, so one identity's data is never served to the next.
// A nil publisher disables mutation events.
func New(
	cfg *cache.Config,
	sender transport.Sender,
	creds credential.Provider,
	publisher events.Publisher,
	m *metrics.Collectors,
	logger zerolog.Logger,
) (*Engine, error) {
	if sender == nil {
		return nil, errors.New("sender cannot be nil")
	}
	if creds == nil {
		return nil, errors.New("credential provider cannot be nil")
	}
	store, err := cache.NewStore(cfg, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	coord, err := invalidation.NewCoordinator(store, publisher, identityOf(creds), logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create invalidation coordinator: %w", err)
	}

	e := &Engine{
		store:   store,
		coord:   coord,
		sender:  sender,
		creds:   creds,
		metrics: m,
		logger:  logger.With().Str("component", "SyncEngine").Logger(),
	}
	e.unsubscribeCreds = creds.Subscribe(func(available bool) {
		if !available {
			e.logger.Info().Msg("Credential no longer available; clearing cache.")
			e.store.Clear()
		}
	})
	return e, nil
}

// Read subscribes to key, fetching on first subscription.
func (e *Engine) Read(key resource.Key, fetch cache.Fetcher) (*cache.Subscription, error) {
	return e.store.Read(key, fetch)
}

// Retry refetches key, e.g. after a failure the user chose to retry.
func (e *Engine) Retry(key resource.Key) error {
	return e.store.Retry(key)
}

// Peek returns the cached entry for key without subscribing.
func (e *Engine) Peek(key resource.Key) (cache.Entry, bool) {
	return e.store.Peek(key)
}

func (e *Engine) Stats() cache.Stats {
	return e.store.Stats()
}

// Sender exposes the transport for calls that neither read through the cache
// nor invalidate it.
func (e *Engine) Sender() transport.Sender {
	return e.sender
}

// Mutate performs call and, only when it succeeds, applies the invalidations of
// d before returning. A failed call leaves the cache untouched and its
// *apierror.Error is returned as is.
func (e *Engine) Mutate(ctx context.Context, d invalidation.Descriptor, call func(ctx context.Context, sender transport.Sender) error) error {
	if err := d.Validate(); err != nil {
		return apierror.Wrap(apierror.KindValidation, err)
	}

	if err := call(ctx, e.sender); err != nil {
		apiErr := apierror.Normalize(err)
		e.metrics.Mutation(string(d.Operation), string(d.Collection), string(apiErr.Kind))
		e.logger.Warn().Err(apiErr).Str("mutation", d.String()).Msg("Mutation failed; cache left untouched.")
		return apiErr
	}

	if err := e.coord.Apply(ctx, d); err != nil {
		return apierror.Wrap(apierror.KindUnknown, err)
	}
	e.metrics.Mutation(string(d.Operation), string(d.Collection), "ok")
	return nil
}

// HandleRemote applies a mutation event published by another process. It is
// an events.Handler.
func (e *Engine) HandleRemote(ctx context.Context, event events.MutationEvent) error {
	return e.coord.ApplyRemote(ctx, event)
}

// Clear drops all cached state, e.g. on an explicit sign-out.
func (e *Engine) Clear() {
	e.store.Clear()
}

// Authenticated wraps fetch so that it settles as an auth error without a
// network call while no credential is available.
func (e *Engine) Authenticated(fetch cache.Fetcher) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		cred, err := e.creds.Credential(ctx)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindAuth, err)
		}
		if cred == nil {
			return nil, apierror.New(apierror.KindAuth, "you are not signed in")
		}
		return fetch(ctx)
	}
}

// Prefetch is one read for Warm.
type Prefetch struct {
	Key   resource.Key
	Fetch cache.Fetcher
}

// Warm reads every key concurrently and waits until each has settled. The
// returned subscriptions keep the entries alive; the caller closes them. On
// error every subscription opened so far is closed.
func (e *Engine) Warm(ctx context.Context, reads ...Prefetch) ([]*cache.Subscription, error) {
	subs := make([]*cache.Subscription, 0, len(reads))
	closeAll := func() {
		for _, sub := range subs {
			sub.Close()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range reads {
		sub, err := e.store.Read(r.Key, r.Fetch)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("warm %s: %w", r.Key, err)
		}
		subs = append(subs, sub)
		g.Go(func() error {
			if _, err := sub.Await(gctx); err != nil {
				return fmt.Errorf("warm %s: %w", sub.Key(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		closeAll()
		return nil, err
	}
	return subs, nil
}

// Close stops listening for credential changes and tears the cache down.
func (e *Engine) Close() {
	if e.unsubscribeCreds != nil {
		e.unsubscribeCreds()
	}
	e.store.Close()
}

// identityOf reports the signed-in user as the subject of the current credential.
func identityOf(creds credential.Provider) invalidation.IdentityFunc {
	return func(ctx context.Context) string {
		cred, err := creds.Credential(ctx)
		if err != nil {
			return ""
		}
		return cred.Subject()
	}
}

// Get returns a Fetcher that GETs path and decodes the body into a T.
func Get[T any](sender transport.Sender, path string) cache.Fetcher {
	return func(ctx context.Context) (any, error) {
		var out T
		if err := sender.Send(ctx, transport.Request{Method: http.MethodGet, Path: path}, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
