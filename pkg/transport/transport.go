// Package transport performs single requests against the recipes and wines API,
// attaching the current credential and normalizing every failure into an
// *apierror.Error.
package transport

import (
	"context"
	"io"
	"time"
)

// Config holds the settings for the HTTP client.
type Config struct {
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds each call. Zero leaves slow generation calls to run
	// to the server's own limits.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// File is one multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// Multipart is an opaque binary body: attached files plus optional text fields.
type Multipart struct {
	Files  []File
	Fields map[string]string
}

// Request describes one logical call. At most one of JSON and Multipart is set.
type Request struct {
	Method    string
	Path      string
	JSON      any
	Multipart *Multipart
}

// Sender sends a request and decodes a successful response body into out.
// A nil out discards the body. Every returned error is an *apierror.Error.
type Sender interface {
	Send(ctx context.Context, req Request, out any) error
}
