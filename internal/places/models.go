package places

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/geo"
)

var (
	// ErrSearchConfig is a credential or request rejection from the search
	// backend. Retrying will not help.
	ErrSearchConfig = errors.New("place search misconfigured")
	// ErrSearchTransient is a network, quota or upstream failure.
	ErrSearchTransient = errors.New("place search temporarily unavailable")
	// ErrDetailsConfig is a credential or request rejection from the details backend.
	ErrDetailsConfig = errors.New("place details misconfigured")
	// ErrDetailsTransient is a network, quota or upstream failure during details.
	ErrDetailsTransient = errors.New("place details temporarily unavailable")
	// ErrPlaceNotFound means the selected place no longer exists upstream.
	// The resolver keeps the token on it like on any other failure; the
	// caller gets a new token only by abandoning the field.
	ErrPlaceNotFound = errors.New("place not found")
)

// Retryable reports whether a search or details failure may succeed when
// reissued unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrSearchTransient) || errors.Is(err, ErrDetailsTransient)
}

// Field identifies one of the two endpoints being searched.
type Field string

const (
	FieldOrigin      Field = "origin"
	FieldDestination Field = "destination"
)

// Fields lists the pipeline fields in resolution order.
var Fields = []Field{FieldOrigin, FieldDestination}

// ParseField validates a field name coming from the API.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case FieldOrigin, FieldDestination:
		return Field(s), nil
	default:
		return "", fmt.Errorf("unknown field %q", s)
	}
}

// PlaceSuggestion is one ranked search candidate.
type PlaceSuggestion struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Address    string          `json:"address"`
	Coordinate *geo.Coordinate `json:"coordinate,omitempty"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
	Types      []string        `json:"types,omitempty"`
	// Provider is the backend that produced the candidate; details are
	// resolved against the same backend.
	Provider string `json:"provider"`
	// SessionToken is the billing token captured when the search was dispatched.
	SessionToken string `json:"session_token"`
}

// PlaceDetails is the resolved selection for a field.
type PlaceDetails struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Address    string         `json:"address"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

// SearchSession groups every autocomplete and the closing details call of a
// single user interaction under one billing token.
type SearchSession struct {
	Token                string    `json:"token"`
	InteractionStartedAt time.Time `json:"interaction_started_at"`
}

// SearchRequest is a single text query sent to a backend.
type SearchRequest struct {
	Query        string
	Bias         *geo.Coordinate
	RadiusMeters int
	Language     string
	Region       string
	SessionToken string
}

// DetailsRequest resolves a place ID to coordinates.
type DetailsRequest struct {
	PlaceID      string
	Language     string
	SessionToken string
	// Provider routes the request to the backend that produced the place ID.
	// Empty means any.
	Provider string
}

// Backend is a place-search service.
type Backend interface {
	Name() string
	Search(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error)
	Details(ctx context.Context, req DetailsRequest) (PlaceDetails, error)
}
