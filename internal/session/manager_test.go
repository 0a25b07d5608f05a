package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// quoted brings a new session to the quote_ready stage.
func (h *harness) quoted(t *testing.T) *Session {
	t.Helper()
	ctx := context.Background()
	s := h.manager.Create(ctx)

	require.NoError(t, s.Acquire(ctx))
	h.emitter.waitState(t, StateLocationReady)

	h.router.On("Route", mock.Anything, routing.RouteRequest{Origin: paulista, Destination: se}).
		Return(straightRoute(paulista, se), nil).Once()
	h.resolve(t, s, places.FieldDestination, "Praca da Se", places.PlaceDetails{
		ID: "place-se", Name: "Praca da Se", Coordinate: se,
	})
	h.emitter.waitState(t, StateQuoteReady)
	return s
}

func TestManager_CreateAndGet(t *testing.T) {
	h := newHarness(t, nil)

	s := h.manager.Create(context.Background())
	got, err := h.manager.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, h.manager.Count())

	_, err = h.manager.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ClosePublishesSessionClosed(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.manager.Create(ctx)

	h.publisher.On("SessionClosed", mock.Anything, s.ID(), ReasonClosed, StateIdle).Return(nil).Once()

	require.NoError(t, h.manager.Close(ctx, s.ID()))
	assert.Equal(t, 0, h.manager.Count())
	assert.Contains(t, h.emitter.closed, s.ID())
	assert.ErrorIs(t, s.Search(ctx, places.FieldOrigin, "abc"), ErrSessionClosed)
	assert.ErrorIs(t, h.manager.Close(ctx, s.ID()), ErrSessionNotFound)
	h.publisher.AssertExpectations(t)
}

func TestManager_CloseEmitsClosedState(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.manager.Create(ctx)
	h.publisher.On("SessionClosed", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, h.manager.Close(ctx, s.ID()))
	h.emitter.waitState(t, StateClosed)
}

func TestManager_SweepExpiresIdleSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	stale := h.manager.Create(ctx)
	h.clock.Advance(2 * time.Hour)
	fresh := h.manager.Create(ctx)

	h.publisher.On("SessionClosed", mock.Anything, stale.ID(), ReasonExpired, StateIdle).Return(nil).Once()

	assert.Equal(t, 1, h.manager.Sweep(ctx))
	_, err := h.manager.Get(stale.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.manager.Get(fresh.ID())
	assert.NoError(t, err)
	h.publisher.AssertExpectations(t)
}

func TestManager_InputKeepsSessionAlive(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	s := h.manager.Create(ctx)

	h.clock.Advance(50 * time.Minute)
	require.NoError(t, s.MapReady(ctx))
	h.clock.Advance(50 * time.Minute)

	assert.Equal(t, 0, h.manager.Sweep(ctx))
}

func TestManager_ShutdownClosesAll(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.manager.Create(ctx)
	h.manager.Create(ctx)

	h.publisher.On("SessionClosed", mock.Anything, mock.Anything, ReasonShutdown, StateIdle).Return(nil).Twice()

	h.manager.Shutdown(ctx)
	assert.Equal(t, 0, h.manager.Count())
	h.publisher.AssertExpectations(t)
}

func TestManager_ConfirmUnknownSession(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.manager.Confirm(context.Background(), "missing", riders)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_ConfirmSurvivesPublishFailure(t *testing.T) {
	h := newHarness(t, &paulista)
	s := h.quoted(t)

	published := h.publisher.expectRide(errors.New("nats: no responders"))

	ride, err := h.manager.Confirm(context.Background(), s.ID(), riders)
	require.NoError(t, err)
	assert.Equal(t, ride.ID, waitRide(t, published).ID)
	assert.NotEmpty(t, ride.ID)
	assert.Equal(t, s.ID(), ride.SessionID)
	assert.Equal(t, 0, h.manager.Count())

	confirmed := h.emitter.waitFor(t, EventConfirmed, nil).(RideRequest)
	assert.Equal(t, ride.ID, confirmed.ID)
	h.publisher.AssertNotCalled(t, "SessionClosed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_ConfirmTwice(t *testing.T) {
	h := newHarness(t, &paulista)
	s := h.quoted(t)
	ctx := context.Background()

	published := h.publisher.expectRide(nil)

	_, err := h.manager.Confirm(ctx, s.ID(), riders)
	require.NoError(t, err)
	waitRide(t, published)

	_, err = s.Confirm(ctx, riders)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = h.manager.Confirm(ctx, s.ID(), riders)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	h.publisher.AssertNumberOfCalls(t, "RideRequested", 1)
}

func TestManager_ConfirmRefusesMissingRiders(t *testing.T) {
	h := newHarness(t, &paulista)
	s := h.quoted(t)
	ctx := context.Background()

	_, err := h.manager.Confirm(ctx, s.ID(), Riders{CarSeatConfirmed: true})
	assert.ErrorIs(t, err, ErrNoChildren)
	_, err = h.manager.Confirm(ctx, s.ID(), Riders{ChildIDs: []string{"child-1"}})
	assert.ErrorIs(t, err, ErrCarSeatUnconfirmed)

	assert.Equal(t, 1, h.manager.Count())
	h.publisher.AssertNotCalled(t, "RideRequested", mock.Anything, mock.Anything)
}
