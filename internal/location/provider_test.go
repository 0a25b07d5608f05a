package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paulista = geo.Coordinate{Latitude: -23.561, Longitude: -46.656}

func boolPtr(v bool) *bool { return &v }

type harness struct {
	loop     *eventloop.Loop
	provider *Provider
	states   chan State
}

func newHarness(t *testing.T, device Device, timeout time.Duration) *harness {
	t.Helper()
	loop := eventloop.New(context.Background())
	t.Cleanup(loop.Close)

	h := &harness{loop: loop, states: make(chan State, 16)}
	h.provider = NewProvider(loop, device, timeout, func(s State) { h.states <- s })
	return h
}

func (h *harness) acquire(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Call(context.Background(), h.provider.Acquire))
}

func (h *harness) next(t *testing.T) State {
	t.Helper()
	select {
	case s := <-h.states:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for location state")
		return State{}
	}
}

func TestProvider_StaticDeviceGranted(t *testing.T) {
	h := newHarness(t, StaticDevice{Coordinate: paulista}, time.Second)

	h.acquire(t)

	assert.Equal(t, StatusRequesting, h.next(t).Status)
	s := h.next(t)
	assert.Equal(t, StatusGranted, s.Status)
	require.NotNil(t, s.Coordinate)
	assert.Equal(t, paulista, *s.Coordinate)
	assert.NoError(t, s.Err())
}

func TestProvider_PermissionDenied(t *testing.T) {
	device := NewClientDevice()
	device.Report(Report{PermissionGranted: boolPtr(false)})
	h := newHarness(t, device, time.Second)

	h.acquire(t)

	h.next(t)
	s := h.next(t)
	assert.Equal(t, StatusDenied, s.Status)
	assert.True(t, s.Status.Terminal())
	assert.ErrorIs(t, s.Err(), ErrPermissionDenied)
	assert.Nil(t, s.Coordinate)
}

func TestProvider_ServicesDisabled(t *testing.T) {
	device := NewClientDevice()
	device.Report(Report{PermissionGranted: boolPtr(true), ServicesEnabled: boolPtr(false)})
	h := newHarness(t, device, time.Second)

	h.acquire(t)

	h.next(t)
	s := h.next(t)
	assert.Equal(t, StatusServiceDisabled, s.Status)
	assert.ErrorIs(t, s.Err(), ErrServicesDisabled)
}

func TestProvider_TimeoutThenRetry(t *testing.T) {
	device := NewClientDevice()
	device.Report(Report{PermissionGranted: boolPtr(true), ServicesEnabled: boolPtr(true)})
	h := newHarness(t, device, 50*time.Millisecond)

	h.acquire(t)
	h.next(t)
	s := h.next(t)
	assert.Equal(t, StatusTimedOut, s.Status)
	assert.False(t, s.Status.Terminal())
	assert.Contains(t, s.ErrorMessage, ErrLocationTimeout.Error())

	h.acquire(t)
	assert.Equal(t, StatusRequesting, h.next(t).Status)
	device.Report(Report{Coordinate: &paulista})
	s = h.next(t)
	assert.Equal(t, StatusGranted, s.Status)
}

func TestProvider_RetryWaitsForFreshFix(t *testing.T) {
	device := NewClientDevice()
	device.Report(Report{PermissionGranted: boolPtr(true), ServicesEnabled: boolPtr(true), Coordinate: &paulista})
	h := newHarness(t, device, time.Second)

	h.acquire(t)
	assert.Equal(t, StatusRequesting, h.next(t).Status)
	assert.Equal(t, StatusGranted, h.next(t).Status)

	h.acquire(t)
	assert.Equal(t, StatusRequesting, h.next(t).Status)
	select {
	case s := <-h.states:
		t.Fatalf("acquisition finished from the cached fix: %+v", s)
	case <-time.After(50 * time.Millisecond):
	}

	moved := geo.Coordinate{Latitude: -23.550, Longitude: -46.633}
	device.Report(Report{Coordinate: &moved})
	s := h.next(t)
	assert.Equal(t, StatusGranted, s.Status)
	require.NotNil(t, s.Coordinate)
	assert.Equal(t, moved, *s.Coordinate)
}

func TestProvider_AcquireWhileRequestingIsNoop(t *testing.T) {
	device := NewClientDevice()
	h := newHarness(t, device, time.Second)

	h.acquire(t)
	h.acquire(t)
	assert.Equal(t, StatusRequesting, h.next(t).Status)

	device.Report(Report{
		PermissionGranted: boolPtr(true),
		ServicesEnabled:   boolPtr(true),
		Coordinate:        &paulista,
	})
	assert.Equal(t, StatusGranted, h.next(t).Status)

	select {
	case s := <-h.states:
		t.Fatalf("unexpected extra transition to %s", s.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProvider_DeviceErrorSurfacesAsTimedOut(t *testing.T) {
	h := newHarness(t, failingDevice{err: errors.New("gps hardware fault")}, time.Second)

	h.acquire(t)
	h.next(t)
	s := h.next(t)
	assert.Equal(t, StatusTimedOut, s.Status)
	assert.Contains(t, s.ErrorMessage, "gps hardware fault")
}

func TestProvider_InvalidCoordinateRejected(t *testing.T) {
	h := newHarness(t, StaticDevice{Coordinate: geo.Coordinate{Latitude: 120, Longitude: 0}}, time.Second)

	h.acquire(t)
	h.next(t)
	assert.Equal(t, StatusTimedOut, h.next(t).Status)
}

func TestClientDevice_WaitHonoursContext(t *testing.T) {
	device := NewClientDevice()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := device.RequestPermission(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientDevice_ReportsMerge(t *testing.T) {
	device := NewClientDevice()
	device.Report(Report{PermissionGranted: boolPtr(true)})
	device.Report(Report{Coordinate: &paulista})

	granted, err := device.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, granted)

	coord, err := device.CurrentPosition(context.Background(), AccuracyHigh)
	require.NoError(t, err)
	assert.Equal(t, paulista, coord)
}

type failingDevice struct {
	err error
}

func (f failingDevice) RequestPermission(context.Context) (bool, error) { return false, f.err }

func (f failingDevice) ServicesEnabled(context.Context) (bool, error) { return false, f.err }

func (f failingDevice) CurrentPosition(context.Context, Accuracy) (geo.Coordinate, error) {
	return geo.Coordinate{}, f.err
}
