package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kidgo",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Open pipeline sessions",
	})

	sessionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "sessions",
		Name:      "ended_total",
		Help:      "Pipeline sessions ended, by reason",
	}, []string{"reason"})

	stateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "sessions",
		Name:      "state_transitions_total",
		Help:      "Pipeline state transitions by target state",
	}, []string{"state"})

	publishFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kidgo",
		Subsystem: "sessions",
		Name:      "publish_failures_total",
		Help:      "Session events that could not be published to the bus",
	}, []string{"subject"})
)
