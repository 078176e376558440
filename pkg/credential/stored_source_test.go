package credential_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// mockTokenSource counts refreshes and returns the configured token.
type mockTokenSource struct {
	TokenFunc func() (*oauth2.Token, error)
	calls     atomic.Int32
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	m.calls.Add(1)
	return m.TokenFunc()
}

func TestStoredTokenSource(t *testing.T) {
	ctx := context.Background()
	key := credential.StoreKey("refresh-token")

	t.Run("refreshes on a miss and serves later calls from the store", func(t *testing.T) {
		// Arrange
		store := credential.NewInMemoryTokenStore()
		source := &mockTokenSource{TokenFunc: func() (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil
		}}
		src, err := credential.NewStoredTokenSource(&credential.StoredSourceConfig{Key: key}, store, source, zerolog.Nop())
		require.NoError(t, err)

		// Act
		first, err := src.Token()
		require.NoError(t, err)
		second, err := src.Token()
		require.NoError(t, err)

		// Assert
		assert.Equal(t, "fresh", first.AccessToken)
		assert.Equal(t, "fresh", second.AccessToken)
		assert.Equal(t, int32(1), source.calls.Load())
		stored, err := store.Fetch(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "fresh", stored.Token)
	})

	t.Run("ignores a stored token inside the expiry skew", func(t *testing.T) {
		// Arrange
		store := credential.NewInMemoryTokenStore()
		require.NoError(t, store.Set(ctx, key, credential.Credential{Token: "old", ExpiresAt: time.Now().Add(10 * time.Second)}))
		source := &mockTokenSource{TokenFunc: func() (*oauth2.Token, error) {
			return &oauth2.Token{AccessToken: "new", Expiry: time.Now().Add(time.Hour)}, nil
		}}
		src, err := credential.NewStoredTokenSource(&credential.StoredSourceConfig{Key: key}, store, source, zerolog.Nop())
		require.NoError(t, err)

		// Act
		tok, err := src.Token()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "new", tok.AccessToken)
		assert.Equal(t, int32(1), source.calls.Load())
	})

	t.Run("source failure is returned", func(t *testing.T) {
		store := credential.NewInMemoryTokenStore()
		source := &mockTokenSource{TokenFunc: func() (*oauth2.Token, error) {
			return nil, errors.New("refresh revoked")
		}}
		src, err := credential.NewStoredTokenSource(&credential.StoredSourceConfig{Key: key}, store, source, zerolog.Nop())
		require.NoError(t, err)

		_, err = src.Token()
		assert.ErrorContains(t, err, "refresh revoked")
	})

	t.Run("forget removes the stored token", func(t *testing.T) {
		store := credential.NewInMemoryTokenStore()
		require.NoError(t, store.Set(ctx, key, credential.Credential{Token: "t"}))
		src, err := credential.NewStoredTokenSource(&credential.StoredSourceConfig{Key: key}, store, &mockTokenSource{}, zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, src.Forget(ctx))
		_, err = store.Fetch(ctx, key)
		assert.ErrorIs(t, err, credential.ErrNotStored)
	})
}

func TestStoreKey(t *testing.T) {
	a := credential.StoreKey("token-a")
	assert.Equal(t, a, credential.StoreKey("token-a"))
	assert.NotEqual(t, a, credential.StoreKey("token-b"))
	assert.NotContains(t, a, "token-a")
}
