package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"resty.dev/v3"
)

// DefaultSecureTokenURL is the Firebase endpoint that exchanges a refresh token
// for a new ID token.
const DefaultSecureTokenURL = "https://securetoken.googleapis.com/v1/token"

// FirebaseConfig holds what is needed to refresh a Firebase ID token.
type FirebaseConfig struct {
	APIKey       string
	RefreshToken string
	// TokenURL overrides DefaultSecureTokenURL, e.g. for the auth emulator.
	TokenURL string
}

// FirebaseTokenSource is an oauth2.TokenSource that refreshes Firebase ID
// tokens. The returned token's AccessToken is the ID token the backend verifies.
type FirebaseTokenSource struct {
	ctx    context.Context
	client *resty.Client
	apiKey string
	url    string
	logger zerolog.Logger

	mu           sync.Mutex
	refreshToken string
}

type secureTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

type secureTokenError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewFirebaseTokenSource creates a token source. ctx bounds every refresh call.
func NewFirebaseTokenSource(ctx context.Context, cfg *FirebaseConfig, logger zerolog.Logger) (*FirebaseTokenSource, error) {
	if cfg == nil {
		return nil, errors.New("firebase config cannot be nil")
	}
	if cfg.APIKey == "" || cfg.RefreshToken == "" {
		return nil, errors.New("firebase api key and refresh token are required")
	}
	url := cfg.TokenURL
	if url == "" {
		url = DefaultSecureTokenURL
	}
	return &FirebaseTokenSource{
		ctx:          ctx,
		client:       resty.New(),
		apiKey:       cfg.APIKey,
		url:          url,
		refreshToken: cfg.RefreshToken,
		logger:       logger.With().Str("component", "FirebaseTokenSource").Logger(),
	}, nil
}

// Token exchanges the refresh token for a new ID token. A rotated refresh
// token in the response replaces the current one.
func (s *FirebaseTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.client.R().
		SetContext(s.ctx).
		SetDoNotParseResponse(true).
		SetQueryParam("key", s.apiKey).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": s.refreshToken,
		}).
		Post(s.url)
	if err != nil {
		return nil, fmt.Errorf("secure token request: %w", err)
	}
	if resp == nil || resp.RawResponse == nil {
		return nil, errors.New("secure token request returned no response")
	}
	defer resp.RawResponse.Body.Close()

	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return nil, fmt.Errorf("read secure token response: %w", err)
	}

	status := resp.RawResponse.StatusCode
	if status < 200 || status >= 300 {
		var apiErr secureTokenError
		msg := resp.RawResponse.Status
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		s.logger.Warn().Int("status", status).Str("reason", msg).Msg("Secure token refresh rejected.")
		return nil, &oauth2.RetrieveError{Response: resp.RawResponse, Body: body, ErrorCode: msg}
	}

	var out secureTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode secure token response: %w", err)
	}
	if out.IDToken == "" {
		return nil, errors.New("secure token response has no id_token")
	}
	if out.RefreshToken != "" {
		s.refreshToken = out.RefreshToken
	}

	expiry := time.Now().Add(time.Hour)
	if exp, ok := ExpiryFromJWT(out.IDToken); ok {
		expiry = exp
	} else if secs, err := strconv.Atoi(out.ExpiresIn); err == nil {
		expiry = time.Now().Add(time.Duration(secs) * time.Second)
	}

	s.logger.Debug().Str("user_id", out.UserID).Time("expires_at", expiry).Msg("Refreshed ID token.")
	return &oauth2.Token{
		AccessToken:  out.IDToken,
		TokenType:    "Bearer",
		RefreshToken: s.refreshToken,
		Expiry:       expiry,
	}, nil
}
