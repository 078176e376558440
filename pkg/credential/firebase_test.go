package credential_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestFirebaseTokenSource_Token(t *testing.T) {
	// Arrange
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	idToken := signedToken(t, exp)

	var mu sync.Mutex
	var seenRefreshTokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "api-key", r.URL.Query().Get("key"))
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))

		mu.Lock()
		seenRefreshTokens = append(seenRefreshTokens, r.PostForm.Get("refresh_token"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"` + idToken + `","refresh_token":"rotated","expires_in":"3600","user_id":"u1"}`))
	}))
	t.Cleanup(server.Close)

	src, err := credential.NewFirebaseTokenSource(context.Background(), &credential.FirebaseConfig{
		APIKey:       "api-key",
		RefreshToken: "initial",
		TokenURL:     server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	// Act
	first, err := src.Token()
	require.NoError(t, err)
	_, err = src.Token()
	require.NoError(t, err)

	// Assert
	assert.Equal(t, idToken, first.AccessToken)
	assert.Equal(t, "rotated", first.RefreshToken)
	assert.True(t, exp.Equal(first.Expiry))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"initial", "rotated"}, seenRefreshTokens)
}

func TestFirebaseTokenSource_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"TOKEN_EXPIRED"}}`))
	}))
	t.Cleanup(server.Close)

	src, err := credential.NewFirebaseTokenSource(context.Background(), &credential.FirebaseConfig{
		APIKey:       "api-key",
		RefreshToken: "stale",
		TokenURL:     server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Token()
	require.Error(t, err)
	var retrieveErr *oauth2.RetrieveError
	require.True(t, errors.As(err, &retrieveErr))
	assert.Equal(t, "TOKEN_EXPIRED", retrieveErr.ErrorCode)
}

func TestNewFirebaseTokenSource_Validation(t *testing.T) {
	_, err := credential.NewFirebaseTokenSource(context.Background(), nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = credential.NewFirebaseTokenSource(context.Background(), &credential.FirebaseConfig{APIKey: "k"}, zerolog.Nop())
	assert.Error(t, err)
}
