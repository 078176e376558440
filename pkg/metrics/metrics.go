// Package metrics holds the Prometheus collectors shared by the cache, the
// transport and the mutation path. A nil *Collectors is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Cache event labels.
const (
	CacheHit          = "hit"
	CacheMiss         = "miss"
	CacheJoin         = "join"
	CacheRevalidate   = "revalidate"
	CacheInvalidate   = "invalidate"
	CacheEvict        = "evict"
	CacheSettleOK     = "settle_success"
	CacheSettleFailed = "settle_error"
)

type Collectors struct {
	registry          *prometheus.Registry
	cacheEvents       *prometheus.CounterVec
	transportRequests *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	mutations         *prometheus.CounterVec
}

func New() *Collectors {
	registry := prometheus.NewRegistry()

	cacheEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resourcesync_cache_events_total",
		Help: "Cache store events by type",
	}, []string{"event"})

	transportRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resourcesync_transport_requests_total",
		Help: "Outbound requests by method and outcome (ok or the normalized error kind)",
	}, []string{"method", "outcome"})

	// AI-backed calls can take tens of seconds.
	transportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resourcesync_transport_request_duration_seconds",
		Help:    "Outbound request latency",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"method"})

	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resourcesync_mutations_total",
		Help: "Mutations by operation, collection and outcome",
	}, []string{"operation", "collection", "outcome"})

	registry.MustRegister(cacheEvents, transportRequests, transportDuration, mutations)

	return &Collectors{
		registry:          registry,
		cacheEvents:       cacheEvents,
		transportRequests: transportRequests,
		transportDuration: transportDuration,
		mutations:         mutations,
	}
}

func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the private registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) CacheEvent(event string) {
	if c == nil {
		return
	}
	c.cacheEvents.WithLabelValues(event).Inc()
}

func (c *Collectors) TransportRequest(method, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.transportRequests.WithLabelValues(method, outcome).Inc()
	c.transportDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

func (c *Collectors) Mutation(operation, collection, outcome string) {
	if c == nil {
		return
	}
	c.mutations.WithLabelValues(operation, collection, outcome).Inc()
}

// CacheEventCount and friends exist for tests and the CLI summary.
func (c *Collectors) CacheEventCount(event string) float64 {
	if c == nil {
		return 0
	}
	return counterValue(c.cacheEvents.WithLabelValues(event))
}

func (c *Collectors) TransportRequestCount(method, outcome string) float64 {
	if c == nil {
		return 0
	}
	return counterValue(c.transportRequests.WithLabelValues(method, outcome))
}

func (c *Collectors) MutationCount(operation, collection, outcome string) float64 {
	if c == nil {
		return 0
	}
	return counterValue(c.mutations.WithLabelValues(operation, collection, outcome))
}

func counterValue(counter prometheus.Counter) float64 {
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
