package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/eventbus"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	ws "github.com/gustavodarosa/KidGo/pkg/websocket"
	"go.uber.org/zap"
)

// Publisher announces session outcomes to downstream services.
type Publisher interface {
	RideRequested(ctx context.Context, ride RideRequest) error
	SessionClosed(ctx context.Context, id string, reason string, last State) error
}

// BusPublisher publishes session outcomes on the event bus. A nil bus
// only logs.
type BusPublisher struct {
	bus    eventbus.Publisher
	source string
}

// NewBusPublisher creates a publisher tagging events with source.
func NewBusPublisher(bus eventbus.Publisher, source string) *BusPublisher {
	return &BusPublisher{bus: bus, source: source}
}

// RideRequested publishes a confirmed ride on rides.requested.
func (p *BusPublisher) RideRequested(ctx context.Context, ride RideRequest) error {
	return p.publish(ctx, eventbus.SubjectRideRequested, eventbus.RideRequestedData{
		RideID:          ride.ID,
		SessionID:       ride.SessionID,
		Origin:          toPlace(ride.Origin),
		Destination:     toPlace(ride.Destination),
		RouteKey:        ride.RouteKey,
		RouteProvider:   ride.RouteProvider,
		DistanceMeters:  ride.DistanceMeters,
		DurationSeconds: ride.DurationSeconds,
		EstimatedFare:   ride.EstimatedFare,
		Currency:        ride.Currency,
		Children:        ride.Children,
		CarSeats:        ride.CarSeats,
		RequestedAt:     ride.RequestedAt,
	})
}

// SessionClosed publishes an abandoned or expired session on sessions.closed.
func (p *BusPublisher) SessionClosed(ctx context.Context, id string, reason string, last State) error {
	return p.publish(ctx, eventbus.SubjectSessionClosed, eventbus.SessionClosedData{
		SessionID: id,
		Reason:    reason,
		LastState: string(last),
		ClosedAt:  time.Now().UTC(),
	})
}

func (p *BusPublisher) publish(ctx context.Context, subject string, data interface{}) error {
	if p.bus == nil {
		logger.DebugContext(ctx, "event bus disabled, dropping event", zap.String("subject", subject))
		return nil
	}

	event, err := eventbus.NewEvent(subject, p.source, data)
	if err != nil {
		return err
	}
	if err := p.bus.Publish(ctx, subject, event); err != nil {
		publishFailuresTotal.WithLabelValues(subject).Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func toPlace(e Endpoint) eventbus.Place {
	return eventbus.Place{
		PlaceID:    e.PlaceID,
		Name:       e.Name,
		Address:    e.Address,
		Coordinate: e.Coordinate,
	}
}

// HubEmitter pushes session events to websocket subscribers.
type HubEmitter struct {
	hub *ws.Hub
}

// NewHubEmitter creates an emitter over hub.
func NewHubEmitter(hub *ws.Hub) *HubEmitter {
	return &HubEmitter{hub: hub}
}

// Emit sends an event to every client watching the session. Events for
// unwatched sessions are not encoded.
func (e *HubEmitter) Emit(sessionID, eventType string, payload interface{}) {
	if e.hub.SessionClientCount(sessionID) == 0 {
		return
	}
	msg, err := ws.NewMessage(eventType, sessionID, payload)
	if err != nil {
		logger.Error("failed to encode session event",
			zap.String("session_id", sessionID),
			zap.String("type", eventType),
			zap.Error(err),
		)
		return
	}
	e.hub.SendToSession(sessionID, msg)
}

// CloseSession disconnects the session's subscribers.
func (e *HubEmitter) CloseSession(sessionID string) {
	e.hub.CloseSession(sessionID)
}
