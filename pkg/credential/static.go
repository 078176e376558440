package credential

import (
	"context"
	"sync"
)

// StaticProvider hands out a fixed token until it is replaced or signed out.
// Useful for service accounts, the CLI's --token flag and tests.
type StaticProvider struct {
	notifier

	mu   sync.RWMutex
	cred *Credential
}

// NewStaticProvider creates a provider. An empty token starts signed out.
func NewStaticProvider(token string) *StaticProvider {
	p := &StaticProvider{}
	if token != "" {
		p.SetToken(token)
	}
	return p
}

// SetToken replaces the token. Its expiry is taken from the JWT exp claim when present.
func (p *StaticProvider) SetToken(token string) {
	cred := &Credential{Token: token}
	if exp, ok := ExpiryFromJWT(token); ok {
		cred.ExpiresAt = exp
	}
	p.mu.Lock()
	p.cred = cred
	p.mu.Unlock()
	p.set(true)
}

func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	p.cred = nil
	p.mu.Unlock()
	p.set(false)
}

// Credential returns the token, or nil when signed out. An expired token is
// still returned so the server reports the rejection as an auth error.
func (p *StaticProvider) Credential(_ context.Context) (*Credential, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cred == nil {
		return nil, nil
	}
	cp := *p.cred
	return &cp, nil
}
