// Package invalidation derives which cached reads a committed mutation makes
// stale and applies that to the cache.
package invalidation

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-resourcesync/pkg/resource"
)

// Operation is the kind of write a mutation performs.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Descriptor states what a write affects. The keys it invalidates are derived
// from Collection and TargetID and are never supplied by callers.
type Descriptor struct {
	Operation  Operation
	Collection resource.Collection
	TargetID   string
}

func Create(c resource.Collection) Descriptor {
	return Descriptor{Operation: OpCreate, Collection: c}
}

func Update(c resource.Collection, id string) Descriptor {
	return Descriptor{Operation: OpUpdate, Collection: c, TargetID: id}
}

func Delete(c resource.Collection, id string) Descriptor {
	return Descriptor{Operation: OpDelete, Collection: c, TargetID: id}
}

// Validate checks that the descriptor names a known operation and collection,
// and a target for updates and deletes. The user can only be deleted.
func (d Descriptor) Validate() error {
	switch d.Collection {
	case resource.Recipes, resource.Wines:
	case resource.Users:
		if d.Operation != OpDelete {
			return fmt.Errorf("unsupported %s on %s", d.Operation, d.Collection)
		}
	default:
		return fmt.Errorf("unknown collection %q", d.Collection)
	}

	switch d.Operation {
	case OpCreate:
		if d.TargetID != "" {
			return errors.New("a create cannot name a target id")
		}
	case OpUpdate, OpDelete:
		if d.TargetID == "" {
			return fmt.Errorf("%s on %s requires a target id", d.Operation, d.Collection)
		}
	default:
		return fmt.Errorf("unknown operation %q", d.Operation)
	}
	return nil
}

// ClearsAll reports whether the mutation removes everything the user owns.
// The backend cascades a user delete to every recipe and wine atomically.
func (d Descriptor) ClearsAll() bool {
	return d.Operation == OpDelete && d.Collection == resource.Users
}

// Invalidates returns the keys the mutation makes stale: the listing for a
// create, and the item plus the listing for an update or delete. It returns
// nil for a mutation that clears everything.
func (d Descriptor) Invalidates() []resource.Key {
	if d.ClearsAll() {
		return nil
	}
	switch d.Operation {
	case OpCreate:
		return []resource.Key{resource.List(d.Collection)}
	case OpUpdate, OpDelete:
		return []resource.Key{resource.Detail(d.Collection, d.TargetID), resource.List(d.Collection)}
	default:
		return nil
	}
}

func (d Descriptor) String() string {
	if d.TargetID == "" {
		return fmt.Sprintf("%s %s", d.Operation, d.Collection)
	}
	return fmt.Sprintf("%s %s/%s", d.Operation, d.Collection, d.TargetID)
}
