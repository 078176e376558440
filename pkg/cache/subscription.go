package cache

import (
	"context"

	"github.com/illmade-knight/go-resourcesync/pkg/resource"
)

// Subscription delivers the state of one key. Updates holds at most the latest
// snapshot; a slow consumer sees the newest state, never a backlog.
type Subscription struct {
	id      uint64
	key     resource.Key
	store   *Store
	initial Entry
	updates chan Entry
	// closed is guarded by the store mutex.
	closed bool
}

func newSubscription(store *Store, id uint64, key resource.Key) *Subscription {
	return &Subscription{
		id:      id,
		key:     key,
		store:   store,
		updates: make(chan Entry, 1),
	}
}

func (s *Subscription) Key() resource.Key { return s.key }

// Initial is the entry as it was when the subscription was created.
func (s *Subscription) Initial() Entry { return s.initial }

// Updates delivers every later state change. It is closed by Close and when
// the Store is closed.
func (s *Subscription) Updates() <-chan Entry { return s.updates }

// Close stops delivery. It never cancels an in-flight fetch.
func (s *Subscription) Close() {
	s.store.unsubscribe(s)
}

// Await blocks until the entry is settled and returns it. A stale value counts
// as settled. Await consumes Updates.
func (s *Subscription) Await(ctx context.Context) (Entry, error) {
	return s.await(ctx, Entry.Settled)
}

// AwaitFresh blocks until the entry is settled and not stale. A stale entry
// only becomes fresh through a refetch, so callers should Read or Retry first.
func (s *Subscription) AwaitFresh(ctx context.Context) (Entry, error) {
	return s.await(ctx, func(e Entry) bool { return e.Settled() && !e.Stale })
}

func (s *Subscription) await(ctx context.Context, done func(Entry) bool) (Entry, error) {
	if e, ok := s.store.Peek(s.key); ok && done(e) {
		return e, nil
	}
	for {
		select {
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		case e, ok := <-s.updates:
			if !ok {
				return Entry{}, ErrClosed
			}
			if done(e) {
				return e, nil
			}
		}
	}
}

// push replaces any undelivered snapshot with e. Called with the store mutex
// held, which makes the store the only sender.
func (s *Subscription) push(e Entry) {
	if s.closed {
		return
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- e
}

// closeLocked closes the update channel. Called with the store mutex held.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}
