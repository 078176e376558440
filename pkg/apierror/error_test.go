package apierror_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/illmade-knight/go-resourcesync/pkg/apierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindForStatus(t *testing.T) {
	testCases := []struct {
		status int
		want   apierror.Kind
	}{
		{http.StatusUnauthorized, apierror.KindAuth},
		{http.StatusForbidden, apierror.KindAuth},
		{http.StatusBadRequest, apierror.KindValidation},
		{http.StatusNotFound, apierror.KindValidation},
		{http.StatusUnprocessableEntity, apierror.KindValidation},
		{http.StatusRequestTimeout, apierror.KindValidation},
		{http.StatusGatewayTimeout, apierror.KindServer},
		{http.StatusInternalServerError, apierror.KindServer},
		{http.StatusBadGateway, apierror.KindServer},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status %d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.want, apierror.KindForStatus(tc.status))
		})
	}
}

func TestFromStatus_MessageNeverEmpty(t *testing.T) {
	e := apierror.FromStatus(http.StatusTeapot, "")
	assert.Equal(t, "I'm a teapot", e.Message)

	e = apierror.FromStatus(599, "")
	assert.NotEmpty(t, e.Message)
	assert.Equal(t, 599, e.HTTPStatus)
	assert.Equal(t, apierror.KindServer, e.Kind)
}

func TestNormalize(t *testing.T) {
	t.Run("Nil stays nil", func(t *testing.T) {
		assert.Nil(t, apierror.Normalize(nil))
	})

	t.Run("Wrapped api error is returned untouched", func(t *testing.T) {
		original := apierror.FromStatus(http.StatusNotFound, "Recipe not found")
		got := apierror.Normalize(fmt.Errorf("fetch: %w", original))
		assert.Same(t, original, got)
	})

	t.Run("Deadline is a timeout", func(t *testing.T) {
		got := apierror.Normalize(fmt.Errorf("post: %w", context.DeadlineExceeded))
		assert.Equal(t, apierror.KindTimeout, got.Kind)
		assert.ErrorIs(t, got, context.DeadlineExceeded)
	})

	t.Run("Net timeout is a timeout", func(t *testing.T) {
		got := apierror.Normalize(timeoutErr{})
		assert.Equal(t, apierror.KindTimeout, got.Kind)
	})

	t.Run("Dial failure is a network error", func(t *testing.T) {
		opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		got := apierror.Normalize(opErr)
		assert.Equal(t, apierror.KindNetwork, got.Kind)
		assert.NotEmpty(t, got.Message)
	})

	t.Run("Anything else is unknown", func(t *testing.T) {
		got := apierror.Normalize(errors.New("boom"))
		assert.Equal(t, apierror.KindUnknown, got.Kind)
		assert.Equal(t, "boom", got.Message)
	})

	t.Run("Transport failures default to network", func(t *testing.T) {
		got := apierror.FromTransportFailure(errors.New("EOF"))
		assert.Equal(t, apierror.KindNetwork, got.Kind)
	})
}

func TestError_Format(t *testing.T) {
	e := apierror.FromStatus(http.StatusUnauthorized, "token expired")
	assert.Equal(t, "auth error (401): token expired", e.Error())

	var target *apierror.Error
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", e), &target))
	assert.True(t, apierror.IsKind(e, apierror.KindAuth))
	assert.False(t, apierror.IsKind(nil, apierror.KindAuth))

	empty := apierror.Wrap(apierror.KindNetwork, errors.New(""))
	assert.NotEmpty(t, empty.Message)
}
