package routing

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "routing",
		Name:      "provider_requests_total",
		Help:      "Route fetches per provider and outcome",
	}, []string{"provider", "outcome"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kidgo",
		Subsystem: "routing",
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of route fetches",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
	}, []string{"provider"})

	routeFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "routing",
		Name:      "provider_fallbacks_total",
		Help:      "Route fetches handed to the next provider after a failure",
	}, []string{"provider"})

	routeCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "routing",
		Name:      "cache_lookups_total",
		Help:      "Route cache lookups by result",
	}, []string{"result"})

	routeSharedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "routing",
		Name:      "shared_fetches_total",
		Help:      "Route requests answered by a fetch already in flight",
	})
)

func recordProviderCall(provider string, started time.Time, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoRoute):
		outcome = "no_route"
	default:
		outcome = "error"
	}
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
	providerRequestDuration.WithLabelValues(provider).Observe(time.Since(started).Seconds())
}
