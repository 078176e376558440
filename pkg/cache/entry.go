package cache

import (
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/resource"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusAbsent  Status = "absent"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is an immutable snapshot of a cache entry as delivered to subscribers.
// A success entry carries Value and no Err; an error entry carries Err and no
// Value. A pending revalidation keeps the last known Value.
type Entry struct {
	Key         resource.Key
	Status      Status
	Value       any
	Err         *apierror.Error
	Stale       bool
	Subscribers int
	UpdatedAt   time.Time
}

// Settled reports whether the entry holds a result.
func (e Entry) Settled() bool {
	return e.Status == StatusSuccess || e.Status == StatusError
}

// entry is the mutable record behind an Entry. All fields are guarded by the
// owning Store's mutex.
type entry struct {
	key       resource.Key
	status    Status
	value     any
	err       *apierror.Error
	stale     bool
	updatedAt time.Time

	fetch Fetcher
	// gen is bumped by every invalidation; a fetch that started at an older
	// generation settles stale.
	gen      uint64
	fetchGen uint64
	inflight bool
	// refetch asks for another fetch as soon as an outdated one settles.
	refetch bool
	subs    map[uint64]*Subscription
}

func newEntry(key resource.Key, fetch Fetcher, gen uint64) *entry {
	return &entry{
		key:    key,
		status: StatusAbsent,
		fetch:  fetch,
		gen:    gen,
		subs:   make(map[uint64]*Subscription),
	}
}

func (e *entry) snapshot() Entry {
	return Entry{
		Key:         e.key,
		Status:      e.status,
		Value:       e.value,
		Err:         e.err,
		Stale:       e.stale,
		Subscribers: len(e.subs),
		UpdatedAt:   e.updatedAt,
	}
}
