package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// StoredSourceConfig configures a StoredTokenSource.
type StoredSourceConfig struct {
	// Key identifies the identity in the store, usually StoreKey(refreshToken).
	Key          string
	StoreTimeout time.Duration
	Skew         time.Duration
}

// StoredTokenSource is an oauth2.TokenSource that serves a still valid token
// from a TokenStore and falls back to the wrapped source, writing the new
// token back.
type StoredTokenSource struct {
	key     string
	timeout time.Duration
	skew    time.Duration
	store   TokenStore
	source  oauth2.TokenSource
	logger  zerolog.Logger
	now     func() time.Time
}

func NewStoredTokenSource(
	cfg *StoredSourceConfig,
	store TokenStore,
	source oauth2.TokenSource,
	logger zerolog.Logger,
) (*StoredTokenSource, error) {
	if cfg == nil || cfg.Key == "" {
		return nil, errors.New("stored token source requires a key")
	}
	if store == nil || source == nil {
		return nil, errors.New("stored token source requires a store and a source")
	}
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	skew := cfg.Skew
	if skew <= 0 {
		skew = DefaultExpirySkew
	}
	return &StoredTokenSource{
		key:     cfg.Key,
		timeout: timeout,
		skew:    skew,
		store:   store,
		source:  source,
		logger:  logger.With().Str("component", "StoredTokenSource").Logger(),
		now:     time.Now,
	}, nil
}

func (s *StoredTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	// 1. Try the store.
	cred, err := s.store.Fetch(ctx, s.key)
	if err == nil && cred.ValidAt(s.now(), s.skew) {
		s.logger.Debug().Msg("Store hit.")
		return &oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer", Expiry: cred.ExpiresAt}, nil
	}
	if err != nil && !errors.Is(err, ErrNotStored) {
		s.logger.Warn().Err(err).Msg("Token store unavailable. Falling back to source.")
	}

	// 2. Refresh from the source.
	tok, err := s.source.Token()
	if err != nil {
		return nil, fmt.Errorf("error fetching token from source: %w", err)
	}

	// 3. Write back. A failed write only costs a later refresh.
	fresh := Credential{Token: tok.AccessToken, ExpiresAt: tok.Expiry}
	if err := s.store.Set(ctx, s.key, fresh); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write token to store.")
	}
	return tok, nil
}

// Forget removes the stored token, e.g. on sign-out.
func (s *StoredTokenSource) Forget(ctx context.Context) error {
	return s.store.Delete(ctx, s.key)
}
