package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

var (
	// ErrNoRoute means the backend answered but could not connect the points.
	ErrNoRoute = errors.New("no route between points")
	// ErrRouteTransient is a network or backend failure; reissuing may succeed.
	ErrRouteTransient = errors.New("route temporarily unavailable")
)

// RouteRequest is an origin/destination pair.
type RouteRequest struct {
	Origin      geo.Coordinate `json:"origin"`
	Destination geo.Coordinate `json:"destination"`
}

// Key identifies the request for caching and refetch decisions. Coordinates
// are fixed to six decimals (about 0.1 m) so float noise does not split keys.
func (r RouteRequest) Key() string {
	return fmt.Sprintf("%.6f,%.6f;%.6f,%.6f",
		r.Origin.Latitude, r.Origin.Longitude,
		r.Destination.Latitude, r.Destination.Longitude,
	)
}

// Status is the outcome of a route fetch.
type Status string

const (
	StatusFound    Status = "found"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Route is a successful backend answer.
type Route struct {
	Polyline        []geo.Coordinate `json:"polyline"`
	DistanceMeters  *float64         `json:"distance_meters,omitempty"`
	DurationSeconds *float64         `json:"duration_seconds,omitempty"`
	Provider        string           `json:"provider"`
}

// RouteResult is the planner's view of the latest fetch for a key.
type RouteResult struct {
	Key             string           `json:"key"`
	Status          Status           `json:"status"`
	Polyline        []geo.Coordinate `json:"polyline,omitempty"`
	DistanceMeters  *float64         `json:"distance_meters,omitempty"`
	DurationSeconds *float64         `json:"duration_seconds,omitempty"`
	Provider        string           `json:"provider,omitempty"`
	Err             error            `json:"-"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// Retryable reports whether reissuing the same request may succeed.
func (r RouteResult) Retryable() bool {
	return r.Status == StatusError
}

func resultFor(key string, route Route, err error) RouteResult {
	switch {
	case err == nil:
		return RouteResult{
			Key:             key,
			Status:          StatusFound,
			Polyline:        route.Polyline,
			DistanceMeters:  route.DistanceMeters,
			DurationSeconds: route.DurationSeconds,
			Provider:        route.Provider,
		}
	case errors.Is(err, ErrNoRoute):
		return RouteResult{Key: key, Status: StatusNotFound, Err: err, ErrorMessage: err.Error()}
	default:
		return RouteResult{Key: key, Status: StatusError, Err: err, ErrorMessage: err.Error()}
	}
}

// Backend is a routing engine.
type Backend interface {
	Name() string
	Route(ctx context.Context, req RouteRequest) (Route, error)
}

func floatPtr(v float64) *float64 {
	return &v
}
