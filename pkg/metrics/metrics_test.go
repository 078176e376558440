package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors_Record(t *testing.T) {
	// Arrange
	m := metrics.New()

	// Act
	m.CacheEvent(metrics.CacheHit)
	m.CacheEvent(metrics.CacheHit)
	m.CacheEvent(metrics.CacheMiss)
	m.TransportRequest(http.MethodGet, "ok", 20*time.Millisecond)
	m.Mutation("create", "recipes", "ok")

	// Assert
	assert.Equal(t, float64(2), m.CacheEventCount(metrics.CacheHit))
	assert.Equal(t, float64(1), m.CacheEventCount(metrics.CacheMiss))
	assert.Equal(t, float64(1), m.TransportRequestCount(http.MethodGet, "ok"))
	assert.Equal(t, float64(1), m.MutationCount("create", "recipes", "ok"))
}

func TestCollectors_NilIsSafe(t *testing.T) {
	var m *metrics.Collectors
	assert.NotPanics(t, func() {
		m.CacheEvent(metrics.CacheMiss)
		m.TransportRequest(http.MethodGet, "network", time.Second)
		m.Mutation("delete", "wines", "network")
	})
	assert.Zero(t, m.CacheEventCount(metrics.CacheMiss))
	assert.Nil(t, m.Registry())
}

func TestCollectors_Handler(t *testing.T) {
	m := metrics.New()
	m.CacheEvent(metrics.CacheJoin)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `resourcesync_cache_events_total{event="join"} 1`)
}
