package quote

import "errors"

var (
	// ErrMissingDistance means the route carried no distance to price.
	ErrMissingDistance = errors.New("route has no distance")
	// ErrInvalidTrip means the route measurements cannot be priced.
	ErrInvalidTrip = errors.New("invalid trip measurements")
)

// Status describes the quote shown for the active route.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnavailable Status = "unavailable"
	StatusReady       Status = "ready"
)

// RideQuote is the price shown for a route key. Amount is set only when
// Status is ready.
type RideQuote struct {
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency"`
	Status   Status   `json:"status"`
	RouteKey string   `json:"route_key"`
	Reason   string   `json:"reason,omitempty"`
}

// Trip holds the route measurements a pricer works from.
type Trip struct {
	DistanceMeters  *float64
	DurationSeconds *float64
}

// Fare is a priced trip.
type Fare struct {
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	BaseFare       float64 `json:"base_fare"`
	DistanceCharge float64 `json:"distance_charge"`
	TimeCharge     float64 `json:"time_charge"`
	MinimumApplied bool    `json:"minimum_applied"`
}

// Pricer turns route measurements into a fare.
type Pricer interface {
	Price(trip Trip) (Fare, error)
}
