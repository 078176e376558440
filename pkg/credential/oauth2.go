package credential

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// OAuth2Provider adapts an oauth2.TokenSource to the Provider contract. Tokens
// are reused until DefaultExpirySkew before they expire, then refreshed.
type OAuth2Provider struct {
	notifier

	mu     sync.RWMutex
	source oauth2.TokenSource
	logger zerolog.Logger
}

// NewOAuth2Provider creates a provider that starts signed out.
func NewOAuth2Provider(logger zerolog.Logger) *OAuth2Provider {
	return &OAuth2Provider{
		logger: logger.With().Str("component", "OAuth2Provider").Logger(),
	}
}

// SignIn installs the token source of a freshly signed-in identity.
func (p *OAuth2Provider) SignIn(src oauth2.TokenSource) {
	p.mu.Lock()
	p.source = oauth2.ReuseTokenSourceWithExpiry(nil, src, DefaultExpirySkew)
	p.mu.Unlock()
	p.logger.Info().Msg("Credential source installed.")
	p.set(true)
}

// SignOut drops the token source.
func (p *OAuth2Provider) SignOut() {
	p.mu.Lock()
	p.source = nil
	p.mu.Unlock()
	p.logger.Info().Msg("Signed out.")
	p.set(false)
}

// Credential returns the current token, refreshing it when it is about to expire.
// An id_token extra, when the source returns one, is preferred over the access token.
func (p *OAuth2Provider) Credential(_ context.Context) (*Credential, error) {
	p.mu.RLock()
	src := p.source
	p.mu.RUnlock()
	if src == nil {
		return nil, nil
	}

	tok, err := src.Token()
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to refresh credential.")
		return nil, fmt.Errorf("refresh credential: %w", err)
	}

	token := tok.AccessToken
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		token = idToken
	}
	return &Credential{Token: token, ExpiresAt: tok.Expiry}, nil
}
