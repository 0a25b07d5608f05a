package eventbus

import (
	"time"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

// Place is a resolved pipeline endpoint.
type Place struct {
	PlaceID    string         `json:"place_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Address    string         `json:"address,omitempty"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

// RideRequestedData is emitted when a rider confirms a quoted route.
type RideRequestedData struct {
	RideID          string    `json:"ride_id"`
	SessionID       string    `json:"session_id"`
	Origin          Place     `json:"origin"`
	Destination     Place     `json:"destination"`
	RouteKey        string    `json:"route_key"`
	RouteProvider   string    `json:"route_provider,omitempty"`
	DistanceMeters  *float64  `json:"distance_meters,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	EstimatedFare   float64   `json:"estimated_fare"`
	Currency        string    `json:"currency"`
	Children        []string  `json:"children"`
	CarSeats        []string  `json:"car_seats,omitempty"`
	RequestedAt     time.Time `json:"requested_at"`
}

// SessionClosedData is emitted when a pipeline session ends without a ride.
type SessionClosedData struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	LastState string    `json:"last_state"`
	ClosedAt  time.Time `json:"closed_at"`
}
