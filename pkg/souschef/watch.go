package souschef

import (
	"context"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/cache"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
)

// Snapshot is a typed view of a cache entry.
type Snapshot[T any] struct {
	Status    cache.Status
	Value     T
	HasValue  bool
	Err       *apierror.Error
	Stale     bool
	UpdatedAt time.Time
}

// Loading reports whether no value has been delivered yet.
func (s Snapshot[T]) Loading() bool {
	return !s.HasValue && s.Err == nil
}

// Result returns the value, or the failure when the read failed.
func (s Snapshot[T]) Result() (T, error) {
	if s.Err != nil {
		var zero T
		return zero, s.Err
	}
	return s.Value, nil
}

func snapshotOf[T any](e cache.Entry) Snapshot[T] {
	s := Snapshot[T]{
		Status:    e.Status,
		Err:       e.Err,
		Stale:     e.Stale,
		UpdatedAt: e.UpdatedAt,
	}
	if v, ok := e.Value.(T); ok {
		s.Value = v
		s.HasValue = true
	}
	return s
}

// Watch is a typed subscription to one cached read. Close it when done.
type Watch[T any] struct {
	sub *cache.Subscription
}

func newWatch[T any](sub *cache.Subscription) *Watch[T] {
	return &Watch[T]{sub: sub}
}

func (w *Watch[T]) Key() resource.Key { return w.sub.Key() }

// Initial is the state at subscription time.
func (w *Watch[T]) Initial() Snapshot[T] {
	return snapshotOf[T](w.sub.Initial())
}

// Next blocks for the next state change.
func (w *Watch[T]) Next(ctx context.Context) (Snapshot[T], error) {
	select {
	case <-ctx.Done():
		return Snapshot[T]{}, ctx.Err()
	case e, ok := <-w.sub.Updates():
		if !ok {
			return Snapshot[T]{}, cache.ErrClosed
		}
		return snapshotOf[T](e), nil
	}
}

// Await blocks until the read has settled, stale or not.
func (w *Watch[T]) Await(ctx context.Context) (Snapshot[T], error) {
	e, err := w.sub.Await(ctx)
	if err != nil {
		return Snapshot[T]{}, err
	}
	return snapshotOf[T](e), nil
}

// AwaitFresh blocks until the read has settled with a value that is not stale.
func (w *Watch[T]) AwaitFresh(ctx context.Context) (Snapshot[T], error) {
	e, err := w.sub.AwaitFresh(ctx)
	if err != nil {
		return Snapshot[T]{}, err
	}
	return snapshotOf[T](e), nil
}

// Value waits for a fresh result and unpacks it.
func (w *Watch[T]) Value(ctx context.Context) (T, error) {
	s, err := w.AwaitFresh(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Result()
}

func (w *Watch[T]) Close() { w.sub.Close() }
