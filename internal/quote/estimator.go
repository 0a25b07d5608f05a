package quote

import (
	"context"

	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var quotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "kidgo",
	Subsystem: "quote",
	Name:      "results_total",
	Help:      "Settled ride quotes by status",
}, []string{"status"})

// Estimator keeps the quote in step with the active route key. It must be
// driven from the session loop.
type Estimator struct {
	ctx      context.Context
	pricer   Pricer
	currency string
	onChange func(RideQuote)

	key     string
	current RideQuote
	// quoted holds ready quotes per route key.
	quoted map[string]RideQuote
}

// NewEstimator creates an estimator. ctx only carries logging fields.
func NewEstimator(ctx context.Context, pricer Pricer, currency string, onChange func(RideQuote)) *Estimator {
	if onChange == nil {
		onChange = func(RideQuote) {}
	}
	return &Estimator{
		ctx:      ctx,
		pricer:   pricer,
		currency: currency,
		onChange: onChange,
		quoted:   make(map[string]RideQuote),
	}
}

// Begin marks key as the active route and resets the quote to pending.
func (e *Estimator) Begin(key string) {
	e.key = key
	e.set(RideQuote{Currency: e.currency, Status: StatusPending, RouteKey: key})
}

// Apply settles the quote from a route result. Results for any key other
// than the active one are ignored.
func (e *Estimator) Apply(result routing.RouteResult) {
	if result.Key != e.key {
		logger.DebugContext(e.ctx, "ignoring route result for superseded key",
			zap.String("route_key", result.Key),
			zap.String("active_key", e.key),
		)
		return
	}

	switch result.Status {
	case routing.StatusFound:
		if q, ok := e.quoted[result.Key]; ok {
			e.set(q)
			return
		}
		fare, err := e.pricer.Price(Trip{
			DistanceMeters:  result.DistanceMeters,
			DurationSeconds: result.DurationSeconds,
		})
		if err != nil {
			logger.WarnContext(e.ctx, "pricing failed", zap.String("route_key", result.Key), zap.Error(err))
			e.unavailable(err.Error())
			return
		}
		currency := fare.Currency
		if currency == "" {
			currency = e.currency
		}
		amount := fare.Amount
		q := RideQuote{Amount: &amount, Currency: currency, Status: StatusReady, RouteKey: result.Key}
		e.quoted[result.Key] = q
		e.set(q)
	case routing.StatusNotFound:
		e.unavailable("no route between the selected places")
	default:
		e.unavailable(result.ErrorMessage)
	}
}

// Reset clears the active key. Cached quotes survive.
func (e *Estimator) Reset() {
	e.key = ""
	e.current = RideQuote{}
}

// Current returns the quote for the active key.
func (e *Estimator) Current() RideQuote {
	return e.current
}

func (e *Estimator) unavailable(reason string) {
	e.set(RideQuote{Currency: e.currency, Status: StatusUnavailable, RouteKey: e.key, Reason: reason})
}

func (e *Estimator) set(q RideQuote) {
	e.current = q
	if q.Status != StatusPending {
		quotesTotal.WithLabelValues(string(q.Status)).Inc()
	}
	e.onChange(q)
}
