// Package credential supplies bearer credentials to the transport and tells the
// engine when a signed-in identity becomes available or goes away.
package credential

import (
	"context"
	"sync"
	"time"
)

// DefaultExpirySkew is how long before its expiry a token is treated as expired.
const DefaultExpirySkew = time.Minute

// Credential is a bearer token with its expiry. A zero ExpiresAt means the
// expiry is unknown and the token is used until the server rejects it.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// ValidAt reports whether the credential can still be used at now, allowing skew.
func (c *Credential) ValidAt(now time.Time, skew time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	if c.ExpiresAt.IsZero() {
		return true
	}
	return c.ExpiresAt.After(now.Add(skew))
}

// Subject identifies the signed-in user from the token's sub claim. It is
// empty for a nil credential or an opaque token.
func (c *Credential) Subject() string {
	if c == nil {
		return ""
	}
	sub, _ := SubjectFromJWT(c.Token)
	return sub
}

// Provider returns a currently valid credential, refreshing as needed. A nil
// credential with a nil error means no identity is signed in.
type Provider interface {
	Credential(ctx context.Context) (*Credential, error)
	// Subscribe registers fn for availability changes and returns a function
	// that removes the registration.
	Subscribe(fn func(available bool)) (unsubscribe func())
}

// notifier tracks availability and fans changes out to subscribers.
type notifier struct {
	mu        sync.Mutex
	available bool
	nextID    int
	subs      map[int]func(bool)
}

func (n *notifier) Subscribe(fn func(available bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(bool))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

// set records availability and notifies subscribers when it changed.
// Callbacks run outside the lock.
func (n *notifier) set(available bool) {
	n.mu.Lock()
	if n.available == available {
		n.mu.Unlock()
		return
	}
	n.available = available
	fns := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(available)
	}
}
