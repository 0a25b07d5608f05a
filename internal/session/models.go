package session

import (
	"errors"
	"time"

	"github.com/gustavodarosa/KidGo/internal/location"
	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/internal/quote"
	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/gustavodarosa/KidGo/internal/viewport"
	"github.com/gustavodarosa/KidGo/pkg/geo"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	// ErrNotConfirmable means confirm was called before a quote was ready.
	ErrNotConfirmable = errors.New("session has no ready quote to confirm")
	// ErrUnknownPlace means the selected place is not among the field's suggestions.
	ErrUnknownPlace = errors.New("place is not a current suggestion")
	// ErrRetryRefused means there is no retryable failure to reissue.
	ErrRetryRefused = errors.New("nothing to retry")
	// ErrNoClientDevice means the session does not take location reports.
	ErrNoClientDevice = errors.New("session location is not client reported")
	// ErrNoChildren means confirm named no child riding.
	ErrNoChildren = errors.New("no child selected for the ride")
	// ErrCarSeatUnconfirmed means the guardian has not confirmed the car seats.
	ErrCarSeatUnconfirmed = errors.New("car seat requirements not confirmed")
)

// State is the pipeline stage of a session.
type State string

const (
	StateIdle              State = "idle"
	StateAcquiringLocation State = "acquiring_location"
	StateLocationError     State = "location_error"
	StateLocationReady     State = "location_ready"
	StateSearching         State = "searching"
	StateSearchError       State = "search_error"
	StateSuggestionsReady  State = "suggestions_ready"
	StateResolvingDetails  State = "resolving_details"
	StateDetailsError      State = "details_error"
	StateFieldResolved     State = "field_resolved"
	StateRoutePlanning     State = "route_planning"
	StateRouteFound        State = "route_found"
	StateRouteNotFound     State = "route_not_found"
	StateRouteError        State = "route_error"
	StateQuoteReady        State = "quote_ready"
	StateConfirmed         State = "confirmed"
	StateClosed            State = "closed"
)

// Terminal reports whether the session accepts no further input.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateClosed
}

// Event types pushed to websocket subscribers.
const (
	// EventSnapshot is sent once to each new subscriber.
	EventSnapshot      = "snapshot"
	EventState         = "state"
	EventLocation      = "location"
	EventSuggestions   = "suggestions"
	EventSearchError   = "search_error"
	EventFieldResolved = "field_resolved"
	EventDetailsError  = "details_error"
	EventRoute         = "route"
	EventQuote         = "quote"
	EventViewport      = "viewport"
	EventConfirmed     = "confirmed"
)

// Inbound websocket message types.
const (
	MessageMapReady       = "map_ready"
	MessageLocationReport = "location_report"
)

// Close reasons.
const (
	ReasonClosed    = "closed"
	ReasonExpired   = "expired"
	ReasonShutdown  = "shutdown"
	ReasonConfirmed = "confirmed"
)

// FieldSnapshot is the visible state of one search field.
type FieldSnapshot struct {
	Query       string                   `json:"query"`
	Suggestions []places.PlaceSuggestion `json:"suggestions"`
	Error       *ErrorInfo               `json:"error,omitempty"`
	Resolving   bool                     `json:"resolving"`
	Details     *places.PlaceDetails     `json:"details,omitempty"`
}

// Snapshot is the full visible state of a session.
type Snapshot struct {
	ID        string                         `json:"id"`
	State     State                          `json:"state"`
	Location  location.State                 `json:"location"`
	Fields    map[places.Field]FieldSnapshot `json:"fields"`
	Route     *routing.RouteResult           `json:"route,omitempty"`
	Quote     quote.RideQuote                `json:"quote"`
	Viewport  *viewport.Region               `json:"viewport,omitempty"`
	CreatedAt time.Time                      `json:"created_at"`
}

// Endpoint is a resolved trip end.
type Endpoint struct {
	PlaceID    string         `json:"place_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Address    string         `json:"address,omitempty"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

// RideRequest is produced by a confirmed session.
type RideRequest struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Origin          Endpoint  `json:"origin"`
	Destination     Endpoint  `json:"destination"`
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

// Riders names the children on a ride and the car seats they need.
type Riders struct {
	ChildIDs         []string
	CarSeats         []string
	CarSeatConfirmed bool
}

func (r Riders) check() error {
	if len(r.ChildIDs) == 0 {
		return ErrNoChildren
	}
	if !r.CarSeatConfirmed {
		return ErrCarSeatUnconfirmed
	}
	return nil
}

// seatRequirements returns the distinct seat types in the order first named.
func (r Riders) seatRequirements() []string {
	var out []string
	seen := make(map[string]bool, len(r.CarSeats))
	for _, seat := range r.CarSeats {
		if seat == "" || seen[seat] {
			continue
		}
		seen[seat] = true
		out = append(out, seat)
	}
	return out
}

// StateChange is the payload of a state event.
type StateChange struct {
	State State `json:"state"`
	From  State `json:"from"`
}

// FieldError is the payload of search and details error events.
type FieldError struct {
	Field places.Field `json:"field"`
	ErrorInfo
}

// FieldResolved is the payload of a field_resolved event.
type FieldResolved struct {
	Field   places.Field        `json:"field"`
	Details places.PlaceDetails `json:"details"`
}
