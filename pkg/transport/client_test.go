package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider is a credential.Provider driven by CredentialFunc.
type mockProvider struct {
	CredentialFunc func(ctx context.Context) (*credential.Credential, error)
}

func (m *mockProvider) Credential(ctx context.Context) (*credential.Credential, error) {
	return m.CredentialFunc(ctx)
}

func (m *mockProvider) Subscribe(func(bool)) func() { return func() {} }

type item struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newClient(t *testing.T, baseURL string, creds credential.Provider, m *metrics.Collectors) *transport.Client {
	t.Helper()
	client, err := transport.NewClient(&transport.Config{BaseURL: baseURL, UserAgent: "test-agent"}, creds, m, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_SendJSON(t *testing.T) {
	// Arrange
	var gotAuth, gotContentType, gotRequestID, gotUserAgent, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get(transport.HeaderRequestID)
		gotUserAgent = r.Header.Get("User-Agent")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		assert.Equal(t, "/api/v1/recipes/", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"7","title":"Pasta"}`))
	}))
	t.Cleanup(server.Close)

	m := metrics.New()
	client := newClient(t, server.URL, credential.NewStaticProvider("secret"), m)

	// Act
	var out item
	err := client.Send(context.Background(), transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/recipes/",
		JSON:   map[string]string{"title": "Pasta"},
	}, &out)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, item{ID: "7", Title: "Pasta"}, out)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, "test-agent", gotUserAgent)
	assert.JSONEq(t, `{"title":"Pasta"}`, gotBody)
	assert.Equal(t, float64(1), m.TransportRequestCount(http.MethodPost, "ok"))
}

func TestClient_SendMultipart(t *testing.T) {
	// Arrange
	var gotContentType, gotPrompt, gotFileName, gotFileContent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotPrompt = r.FormValue("prompt")
		file, header, err := r.FormFile("images")
		if err == nil {
			defer file.Close()
			gotFileName = header.Filename
			content, _ := io.ReadAll(file)
			gotFileContent = string(content)
		}
		_, _ = w.Write([]byte(`{"id":"9","title":"From photo"}`))
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL, credential.NewStaticProvider("secret"), nil)

	// Act
	var out item
	err := client.Send(context.Background(), transport.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/recipes/analyze",
		Multipart: &transport.Multipart{
			Files: []transport.File{{
				Field:       "images",
				Name:        "dish.jpg",
				ContentType: "image/jpeg",
				Content:     strings.NewReader("jpeg-bytes"),
			}},
			Fields: map[string]string{"prompt": "what is this"},
		},
	}, &out)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "9", out.ID)
	assert.True(t, strings.HasPrefix(gotContentType, "multipart/form-data; boundary="),
		"the boundary must be generated by the HTTP client, got %q", gotContentType)
	assert.Equal(t, "what is this", gotPrompt)
	assert.Equal(t, "dish.jpg", gotFileName)
	assert.Equal(t, "jpeg-bytes", gotFileContent)
}

func TestClient_SendWithoutBodyDeclaresNoContentType(t *testing.T) {
	var gotContentType, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL, credential.NewStaticProvider(""), nil)

	var out []item
	err := client.Send(context.Background(), transport.Request{Method: http.MethodGet, Path: "/api/v1/wines/"}, &out)

	require.NoError(t, err)
	assert.Empty(t, gotContentType)
	assert.Empty(t, gotAuth, "an absent credential sends the request anonymously")
	assert.Empty(t, out)
}

func TestClient_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL, credential.NewStaticProvider("secret"), nil)

	out := item{ID: "unchanged"}
	err := client.Send(context.Background(), transport.Request{Method: http.MethodDelete, Path: "/api/v1/wines/3"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "unchanged", out.ID)
}

func TestClient_ErrorNormalization(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		wantKind    apierror.Kind
		wantMessage string
	}{
		{
			name:        "detail string",
			status:      http.StatusNotFound,
			body:        `{"detail":"Recipe not found"}`,
			wantKind:    apierror.KindValidation,
			wantMessage: "Recipe not found",
		},
		{
			name:        "validation detail list",
			status:      http.StatusUnprocessableEntity,
			body:        `{"detail":[{"loc":["body","title"],"msg":"field required"},{"loc":["body","ingredients"],"msg":"field required"}]}`,
			wantKind:    apierror.KindValidation,
			wantMessage: "field required; field required",
		},
		{
			name:        "message field",
			status:      http.StatusForbidden,
			body:        `{"message":"not your recipe"}`,
			wantKind:    apierror.KindAuth,
			wantMessage: "not your recipe",
		},
		{
			name:        "unauthorized without body",
			status:      http.StatusUnauthorized,
			body:        ``,
			wantKind:    apierror.KindAuth,
			wantMessage: "Unauthorized",
		},
		{
			name:        "unparseable server error falls back to status text",
			status:      http.StatusInternalServerError,
			body:        `<html>boom</html>`,
			wantKind:    apierror.KindServer,
			wantMessage: "Internal Server Error",
		},
		{
			name:        "gateway timeout is a server error",
			status:      http.StatusGatewayTimeout,
			body:        `{"detail":"model took too long"}`,
			wantKind:    apierror.KindServer,
			wantMessage: "model took too long",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)
			m := metrics.New()
			client := newClient(t, server.URL, credential.NewStaticProvider("secret"), m)

			// Act
			err := client.Send(context.Background(), transport.Request{Method: http.MethodGet, Path: "/api/v1/recipes/1"}, &item{})

			// Assert
			var apiErr *apierror.Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.wantKind, apiErr.Kind)
			assert.Equal(t, tc.wantMessage, apiErr.Message)
			assert.Equal(t, tc.status, apiErr.HTTPStatus)
			assert.Equal(t, float64(1), m.TransportRequestCount(http.MethodGet, string(tc.wantKind)))
		})
	}
}

func TestClient_UnrecognizedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	t.Cleanup(server.Close)
	client := newClient(t, server.URL, credential.NewStaticProvider("secret"), nil)

	err := client.Send(context.Background(), transport.Request{Method: http.MethodGet, Path: "/api/v1/recipes/"}, &[]item{})

	assert.True(t, apierror.IsKind(err, apierror.KindUnknown))
}

func TestClient_CredentialFailure(t *testing.T) {
	// Arrange
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(server.Close)
	creds := &mockProvider{CredentialFunc: func(context.Context) (*credential.Credential, error) {
		return nil, errors.New("refresh token revoked")
	}}
	client := newClient(t, server.URL, creds, nil)

	// Act
	err := client.Send(context.Background(), transport.Request{Method: http.MethodGet, Path: "/api/v1/users/me"}, nil)

	// Assert
	assert.True(t, apierror.IsKind(err, apierror.KindAuth))
	assert.ErrorContains(t, err, "refresh token revoked")
	assert.Equal(t, int32(0), calls.Load(), "no request is sent without a usable credential")
}

func TestClient_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newClient(t, url, credential.NewStaticProvider("secret"), nil)

	err := client.Send(context.Background(), transport.Request{Method: http.MethodDelete, Path: "/api/v1/wines/3"}, nil)

	var apiErr *apierror.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, apierror.KindNetwork, apiErr.Kind)
	assert.NotEmpty(t, apiErr.Message)
	assert.Zero(t, apiErr.HTTPStatus)
}

func TestClient_RequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(server.Close)

	client, err := transport.NewClient(&transport.Config{BaseURL: server.URL, RequestTimeout: 50 * time.Millisecond},
		credential.NewStaticProvider("secret"), nil, zerolog.Nop())
	require.NoError(t, err)

	err = client.Send(context.Background(), transport.Request{Method: http.MethodPost, Path: "/api/v1/recipes/", JSON: map[string]string{}}, nil)

	assert.True(t, apierror.IsKind(err, apierror.KindTimeout), "got %v", err)
}

func TestClient_RejectsAmbiguousBody(t *testing.T) {
	client := newClient(t, "http://127.0.0.1:1", credential.NewStaticProvider("secret"), nil)

	err := client.Send(context.Background(), transport.Request{
		Method:    http.MethodPost,
		Path:      "/api/v1/recipes/analyze",
		JSON:      map[string]string{},
		Multipart: &transport.Multipart{},
	}, nil)

	assert.True(t, apierror.IsKind(err, apierror.KindValidation))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := transport.NewClient(nil, credential.NewStaticProvider(""), nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = transport.NewClient(&transport.Config{}, credential.NewStaticProvider(""), nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = transport.NewClient(&transport.Config{BaseURL: "http://x"}, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}
