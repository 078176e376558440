// Package apierror defines the single error shape every remote-call failure is
// coerced into before it reaches the cache or a caller.
package apierror

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindAuth       Kind = "auth"
	KindValidation Kind = "validation"
	KindServer     Kind = "server"
	KindTimeout    Kind = "timeout"
	KindUnknown    Kind = "unknown"
)

// Error is a normalized failure. Message is always a non-empty, human-readable
// string; HTTPStatus is zero when no response was received.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int

	cause error
}

// New creates an Error, substituting a default message for an empty one.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind that keeps err as its cause.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return New(kind, "")
	}
	e := New(kind, err.Error())
	e.cause = err
	return e
}

// FromStatus creates an Error for a non-success HTTP status.
func FromStatus(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Kind: KindForStatus(status), Message: message, HTTPStatus: status}
}

// KindForStatus maps an HTTP status onto the taxonomy. A status never yields
// KindTimeout: 408 and 504 are answers from the server, not expired deadlines.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

func (e *Error) Error() string {
	if e.HTTPStatus > 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Normalize coerces any error into an *Error. An *Error anywhere in the chain
// is returned as is.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if isTimeout(err) {
		e := Wrap(KindTimeout, err)
		e.Message = "the request timed out"
		return e
	}
	if errors.Is(err, context.Canceled) {
		e := Wrap(KindNetwork, err)
		e.Message = "the request was cancelled"
		return e
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Wrap(KindNetwork, err)
	}
	return Wrap(KindUnknown, err)
}

// FromTransportFailure normalizes an error raised before any response arrived.
// Anything that is not a timeout is a network failure.
func FromTransportFailure(err error) *Error {
	e := Normalize(err)
	if e.Kind == KindUnknown {
		e.Kind = KindNetwork
	}
	return e
}

// IsKind reports whether err normalizes to the given kind.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return Normalize(err).Kind == kind
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindNetwork:
		return "could not reach the server"
	case KindAuth:
		return "you are not signed in or your session has expired"
	case KindValidation:
		return "the request was rejected"
	case KindServer:
		return "the server failed to handle the request"
	case KindTimeout:
		return "the request timed out"
	default:
		return "an unexpected error occurred"
	}
}
