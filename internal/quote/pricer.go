package quote

import (
	"fmt"
	"math"

	"github.com/gustavodarosa/KidGo/pkg/config"
	"github.com/gustavodarosa/KidGo/pkg/geo"
)

// RatePricer charges a base fare plus distance and time rates, floored at a
// minimum fare.
type RatePricer struct {
	cfg config.PricingConfig
}

// NewRatePricer creates a pricer from the pricing configuration
func NewRatePricer(cfg config.PricingConfig) *RatePricer {
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	return &RatePricer{cfg: cfg}
}

// Currency returns the currency fares are quoted in.
func (p *RatePricer) Currency() string {
	return p.cfg.Currency
}

// Price computes the fare. A missing duration is estimated from the distance.
func (p *RatePricer) Price(trip Trip) (Fare, error) {
	if trip.DistanceMeters == nil {
		return Fare{}, ErrMissingDistance
	}
	meters := *trip.DistanceMeters
	if meters < 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return Fare{}, fmt.Errorf("%w: distance %v", ErrInvalidTrip, meters)
	}
	km := meters / 1000

	var minutes float64
	if trip.DurationSeconds != nil {
		seconds := *trip.DurationSeconds
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return Fare{}, fmt.Errorf("%w: duration %v", ErrInvalidTrip, seconds)
		}
		minutes = seconds / 60
	} else {
		minutes = float64(geo.EstimateDuration(km))
	}

	fare := Fare{
		Currency:       p.cfg.Currency,
		BaseFare:       p.cfg.BaseFare,
		DistanceCharge: km * p.cfg.PerKm,
		TimeCharge:     minutes * p.cfg.PerMinute,
	}
	fare.Amount = fare.BaseFare + fare.DistanceCharge + fare.TimeCharge

	if fare.Amount < p.cfg.MinimumFare {
		fare.Amount = p.cfg.MinimumFare
		fare.MinimumApplied = true
	}

	fare.roundValues()
	return fare, nil
}

// roundValues rounds all monetary values to 2 decimal places
func (f *Fare) roundValues() {
	f.Amount = roundCents(f.Amount)
	f.BaseFare = roundCents(f.BaseFare)
	f.DistanceCharge = roundCents(f.DistanceCharge)
	f.TimeCharge = roundCents(f.TimeCharge)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
