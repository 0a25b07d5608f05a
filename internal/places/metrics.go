package places

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "places",
		Name:      "provider_requests_total",
		Help:      "Place search and details calls per provider and outcome",
	}, []string{"provider", "operation", "outcome"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kidgo",
		Subsystem: "places",
		Name:      "provider_request_duration_seconds",
		Help:      "Latency of place search and details calls",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
	}, []string{"provider", "operation"})

	providerFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "places",
		Name:      "provider_fallbacks_total",
		Help:      "Calls handed to the next provider after a failure",
	}, []string{"provider", "operation"})
)

func recordProviderCall(provider, operation string, started time.Time, err error) {
	providerRequestsTotal.WithLabelValues(provider, operation, outcome(err)).Inc()
	providerRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPlaceNotFound):
		return "not_found"
	case errors.Is(err, ErrSearchConfig), errors.Is(err, ErrDetailsConfig):
		return "config"
	default:
		return "transient"
	}
}
