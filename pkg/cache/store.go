// Package cache holds the per-key state of remote reads: it deduplicates
// in-flight fetches, retains settled values and errors for subscribers, and
// applies invalidations from committed mutations.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
	"github.com/rs/zerolog"
)

var (
	// ErrClosed is returned by operations on a closed Store or Subscription.
	ErrClosed = errors.New("cache store is closed")
	// ErrNotCached is returned by Retry for a key with no entry.
	ErrNotCached = errors.New("key is not cached")
)

// Fetcher performs the remote read for one key. The context is owned by the
// Store and is cancelled only when the Store is closed.
type Fetcher func(ctx context.Context) (any, error)

// Config holds the Store policy knobs.
type Config struct {
	// MaxIdleEntries bounds how many results of fetches whose subscribers all
	// left are kept for a later subscriber. Zero disables retention.
	MaxIdleEntries int `mapstructure:"max_idle_entries"`
	// RefetchOnInvalidate starts the refetch of a subscribed entry as soon as it
	// is invalidated instead of on its next Read.
	RefetchOnInvalidate bool `mapstructure:"refetch_on_invalidate"`
}

// DefaultConfig returns the Store defaults.
func DefaultConfig() *Config {
	return &Config{MaxIdleEntries: 64}
}

// Stats is a point-in-time summary of the Store.
type Stats struct {
	Entries     int
	Idle        int
	InFlight    int
	Subscribers int
}

// Store is the resource cache. Every state transition happens under one mutex
// and nothing blocks while holding it; fetches run on their own goroutines and
// their results are applied under the lock.
type Store struct {
	cfg     Config
	metrics *metrics.Collectors
	logger  zerolog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	entries map[string]*entry
	idle    *lruList[string]
	nextSub uint64
}

// NewStore creates a Store. A nil cfg uses DefaultConfig; a nil metrics
// collector records nothing.
func NewStore(cfg *Config, m *metrics.Collectors, logger zerolog.Logger) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxIdleEntries < 0 {
		return nil, fmt.Errorf("max idle entries must not be negative, got %d", cfg.MaxIdleEntries)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:     *cfg,
		metrics: m,
		logger:  logger.With().Str("component", "CacheStore").Logger(),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]*entry),
		idle:    newLRUList[string](cfg.MaxIdleEntries),
	}, nil
}

// Read subscribes to key. A settled entry is delivered as is and, when stale,
// revalidated in the background. An absent entry starts a fetch. A pending
// entry is joined without a second fetch.
func (s *Store) Read(key resource.Key, fetch Fetcher) (*Subscription, error) {
	if key.IsZero() {
		return nil, errors.New("cannot read the empty key")
	}
	if fetch == nil {
		return nil, errors.New("fetch function cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	id := key.ID()
	e, ok := s.entries[id]
	if !ok {
		e = newEntry(key, fetch, 0)
		s.entries[id] = e
	}
	s.idle.remove(id)
	e.fetch = fetch

	s.nextSub++
	sub := newSubscription(s, s.nextSub, key)
	log := s.logger.Debug().Str("key", key.String())

	switch {
	case e.status == StatusAbsent:
		s.metrics.CacheEvent(metrics.CacheMiss)
		s.startFetch(e)
		e.subs[sub.id] = sub
		sub.initial = e.snapshot()
		log.Msg("Cache miss, fetching.")
	case e.status == StatusPending:
		s.metrics.CacheEvent(metrics.CacheJoin)
		if e.fetchGen != e.gen {
			e.refetch = true
		}
		e.subs[sub.id] = sub
		sub.initial = e.snapshot()
		log.Msg("Joined in-flight fetch.")
	case e.stale:
		s.metrics.CacheEvent(metrics.CacheRevalidate)
		e.subs[sub.id] = sub
		sub.initial = e.snapshot()
		s.startFetch(e)
		log.Msg("Serving stale entry while revalidating.")
	default:
		s.metrics.CacheEvent(metrics.CacheHit)
		e.subs[sub.id] = sub
		sub.initial = e.snapshot()
		log.Msg("Cache hit.")
	}
	return sub, nil
}

// Invalidate marks every entry whose key equals one of keys, or is a
// prefix-ancestor of one, as stale. Entries without subscribers are evicted
// instead. It returns the number of entries affected.
func (s *Store) Invalidate(keys ...resource.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(keys) == 0 {
		return 0
	}

	affected := 0
	for _, e := range s.entries {
		if !matchesAny(e.key, keys) {
			continue
		}
		affected++
		e.gen++

		if len(e.subs) == 0 {
			// An in-flight fetch without subscribers settles stale and is evicted then.
			if !e.inflight {
				s.evict(e)
			}
			continue
		}
		if e.status == StatusAbsent {
			continue
		}

		s.metrics.CacheEvent(metrics.CacheInvalidate)
		e.stale = true
		switch {
		case e.inflight:
			e.refetch = e.refetch || s.cfg.RefetchOnInvalidate
			s.notify(e)
		case s.cfg.RefetchOnInvalidate:
			s.metrics.CacheEvent(metrics.CacheRevalidate)
			s.startFetch(e)
		default:
			s.notify(e)
		}
	}
	s.logger.Debug().Int("affected", affected).Int("keys", len(keys)).Msg("Applied invalidation.")
	return affected
}

func matchesAny(entryKey resource.Key, keys []resource.Key) bool {
	for _, k := range keys {
		if entryKey.IsPrefixOf(k) {
			return true
		}
	}
	return false
}

// Clear drops every cached value. Entries without subscribers are evicted.
// Subscribed entries are replaced by a new generation that starts fetching at
// once, so subscribers see pending without the old value and then the result
// fetched under the current identity. Any in-flight result is discarded.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for id, e := range s.entries {
		if len(e.subs) == 0 {
			s.evict(e)
			continue
		}
		fresh := newEntry(e.key, e.fetch, e.gen+1)
		fresh.subs = e.subs
		s.entries[id] = fresh
		s.metrics.CacheEvent(metrics.CacheMiss)
		s.startFetch(fresh)
	}
	s.idle.clear()
	s.logger.Info().Int("remaining", len(s.entries)).Msg("Cache cleared.")
}

// Retry refetches key unless a fetch is already in flight. It is the manual
// recovery path for an error entry.
func (s *Store) Retry(key resource.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	e, ok := s.entries[key.ID()]
	if !ok {
		return fmt.Errorf("retry %s: %w", key, ErrNotCached)
	}
	if e.inflight {
		return nil
	}
	s.idle.remove(key.ID())
	s.startFetch(e)
	s.logger.Debug().Str("key", key.String()).Msg("Retrying fetch.")
	return nil
}

// Peek returns the current entry for key without subscribing.
func (s *Store) Peek(key resource.Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.ID()]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Entries: len(s.entries), Idle: s.idle.len()}
	for _, e := range s.entries {
		if e.inflight {
			st.InFlight++
		}
		st.Subscribers += len(e.subs)
	}
	return st
}

// Close tears the Store down: in-flight fetches are cancelled, every
// subscription's update channel is closed and Close waits for the fetch
// goroutines to return.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.entries {
		for _, sub := range e.subs {
			sub.closeLocked()
		}
	}
	s.entries = make(map[string]*entry)
	s.idle.clear()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Cache store closed.")
}

// startFetch moves e to pending and runs its fetcher. Must be called with the
// lock held on an open Store.
func (s *Store) startFetch(e *entry) {
	e.status = StatusPending
	e.err = nil
	e.inflight = true
	e.refetch = false
	e.fetchGen = e.gen

	fetch, gen := e.fetch, e.gen
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		value, err := fetch(s.ctx)
		s.settle(e, gen, value, err)
	}()
	s.notify(e)
}

// settle applies a fetch result. Results for an entry that was evicted or
// replaced meanwhile are dropped.
func (s *Store) settle(e *entry, gen uint64, value any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := e.key.ID()
	if s.closed || s.entries[id] != e {
		s.logger.Debug().Str("key", e.key.String()).Msg("Dropping result for evicted entry.")
		return
	}

	e.inflight = false
	e.updatedAt = s.now()
	if err != nil {
		e.status = StatusError
		e.err = apierror.Normalize(err)
		e.value = nil
		s.metrics.CacheEvent(metrics.CacheSettleFailed)
		s.logger.Debug().Str("key", e.key.String()).Err(err).Msg("Fetch failed.")
	} else {
		e.status = StatusSuccess
		e.value = value
		e.err = nil
		s.metrics.CacheEvent(metrics.CacheSettleOK)
	}
	e.stale = gen != e.gen

	if len(e.subs) == 0 {
		if e.stale || s.cfg.MaxIdleEntries == 0 {
			s.evict(e)
			return
		}
		if victim, ok := s.idle.push(id); ok {
			if old, found := s.entries[victim]; found {
				s.evict(old)
			}
		}
		return
	}

	s.notify(e)
	if e.stale && e.refetch {
		s.metrics.CacheEvent(metrics.CacheRevalidate)
		s.startFetch(e)
	}
}

// evict removes an entry without subscribers.
func (s *Store) evict(e *entry) {
	id := e.key.ID()
	delete(s.entries, id)
	s.idle.remove(id)
	s.metrics.CacheEvent(metrics.CacheEvict)
}

func (s *Store) notify(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshot()
	for _, sub := range e.subs {
		sub.push(snap)
	}
}

// unsubscribe removes sub. A settled entry left without subscribers is
// evicted; an in-flight one is kept until it settles.
func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closeLocked()
	if s.closed {
		return
	}

	e, ok := s.entries[sub.key.ID()]
	if !ok {
		return
	}
	if _, ok := e.subs[sub.id]; !ok {
		return
	}
	delete(e.subs, sub.id)
	if len(e.subs) > 0 {
		return
	}
	if e.inflight {
		s.logger.Debug().Str("key", e.key.String()).Msg("Last subscriber left during fetch; keeping entry until it settles.")
		return
	}
	s.evict(e)
}
