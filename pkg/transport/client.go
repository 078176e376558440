package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/rs/zerolog"
	"resty.dev/v3"
)

const (
	// HeaderRequestID carries a per-call correlation id.
	HeaderRequestID = "X-Request-ID"
	// DefaultUserAgent is sent when the config does not name one.
	DefaultUserAgent = "souschef-sync/1.0"
)

// Client is the resty-backed Sender.
type Client struct {
	http    *resty.Client
	creds   credential.Provider
	timeout time.Duration
	metrics *metrics.Collectors
	logger  zerolog.Logger
}

// NewClient creates a Client. A nil metrics collector records nothing.
func NewClient(cfg *Config, creds credential.Provider, m *metrics.Collectors, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("transport config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("transport base url is required")
	}
	if creds == nil {
		return nil, errors.New("credential provider cannot be nil")
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	return &Client{
		http:    httpClient,
		creds:   creds,
		timeout: cfg.RequestTimeout,
		metrics: m,
		logger:  logger.With().Str("component", "TransportClient").Logger(),
	}, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Send performs req. Structured bodies are sent as JSON with the content type
// declared; multipart bodies leave the content type to the HTTP client so it
// can generate the boundary.
func (c *Client) Send(ctx context.Context, req Request, out any) error {
	start := time.Now()
	requestID := uuid.NewString()
	log := c.logger.With().Str("method", req.Method).Str("path", req.Path).Str("request_id", requestID).Logger()

	err := c.send(ctx, requestID, req, out)
	elapsed := time.Since(start)

	outcome := "ok"
	if err != nil {
		apiErr := apierror.Normalize(err)
		outcome = string(apiErr.Kind)
		err = apiErr
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("Request failed.")
	} else {
		log.Debug().Dur("elapsed", elapsed).Msg("Request succeeded.")
	}
	c.metrics.TransportRequest(req.Method, outcome, elapsed)
	return err
}

func (c *Client) send(ctx context.Context, requestID string, req Request, out any) error {
	if req.JSON != nil && req.Multipart != nil {
		return apierror.New(apierror.KindValidation, "a request cannot carry both a structured and a multipart body")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return apierror.Wrap(apierror.KindAuth, fmt.Errorf("could not obtain a credential: %w", err))
	}

	r := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader(HeaderRequestID, requestID)
	if cred != nil && cred.Token != "" {
		r.SetHeader("Authorization", "Bearer "+cred.Token)
	}

	switch {
	case req.Multipart != nil:
		for _, f := range req.Multipart.Files {
			r.SetMultipartField(f.Field, f.Name, f.ContentType, f.Content)
		}
		if len(req.Multipart.Fields) > 0 {
			r.SetMultipartFormData(req.Multipart.Fields)
		}
	case req.JSON != nil:
		body, err := json.Marshal(req.JSON)
		if err != nil {
			return apierror.Wrap(apierror.KindValidation, fmt.Errorf("failed to encode request body: %w", err))
		}
		r.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := r.Execute(req.Method, req.Path)
	if err != nil {
		if resp != nil && resp.RawResponse != nil {
			_ = resp.RawResponse.Body.Close()
		}
		return apierror.FromTransportFailure(err)
	}
	if resp == nil || resp.RawResponse == nil {
		return apierror.New(apierror.KindNetwork, "")
	}
	defer resp.RawResponse.Body.Close()

	body, err := io.ReadAll(resp.RawResponse.Body)
	if err != nil {
		return apierror.FromTransportFailure(err)
	}

	status := resp.RawResponse.StatusCode
	if status < 200 || status >= 300 {
		return apierror.FromStatus(status, errorMessage(body))
	}
	if status == http.StatusNoContent || out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apierror.Wrap(apierror.KindUnknown, fmt.Errorf("unrecognized response payload: %w", err))
	}
	return nil
}
