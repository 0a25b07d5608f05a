package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/tracing"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	tracerName = "kidgo/location"

	// DefaultTimeout bounds a whole acquisition.
	DefaultTimeout = 20 * time.Second
)

// Provider acquires the device coordinate. All methods must run on the
// session loop.
type Provider struct {
	loop     *eventloop.Loop
	device   Device
	timeout  time.Duration
	accuracy Accuracy
	onChange func(State)

	state State
}

// NewProvider creates a provider in the Unresolved state. onChange observes
// every state transition on the loop.
func NewProvider(loop *eventloop.Loop, device Device, timeout time.Duration, onChange func(State)) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if onChange == nil {
		onChange = func(State) {}
	}
	return &Provider{
		loop:     loop,
		device:   device,
		timeout:  timeout,
		accuracy: AccuracyHigh,
		onChange: onChange,
		state:    State{Status: StatusUnresolved},
	}
}

// State returns the current snapshot.
func (p *Provider) State() State {
	return p.state
}

// Coordinate returns the granted coordinate, if any.
func (p *Provider) Coordinate() (geo.Coordinate, bool) {
	if p.state.Status != StatusGranted || p.state.Coordinate == nil {
		return geo.Coordinate{}, false
	}
	return *p.state.Coordinate, true
}

// Acquire starts an acquisition. It is a no-op while one is running.
func (p *Provider) Acquire() {
	if p.state.Status == StatusRequesting {
		return
	}
	if r, ok := p.device.(FixResetter); ok {
		r.ResetFix()
	}
	p.set(State{Status: StatusRequesting})

	device, timeout, accuracy := p.device, p.timeout, p.accuracy
	eventloop.Dispatch(p.loop, "location.acquire", func(ctx context.Context) (geo.Coordinate, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return acquire(ctx, device, accuracy)
	}, p.complete)
}

func (p *Provider) complete(coord geo.Coordinate, err error) {
	ctx := p.loop.Context()

	switch {
	case err == nil:
		c := coord
		p.set(State{Status: StatusGranted, Coordinate: &c})
		logger.DebugContext(ctx, "device location granted", zap.String("coordinate", c.String()))
	case errors.Is(err, ErrPermissionDenied):
		p.set(State{Status: StatusDenied, ErrorMessage: err.Error()})
	case errors.Is(err, ErrServicesDisabled):
		p.set(State{Status: StatusServiceDisabled, ErrorMessage: err.Error()})
	default:
		p.set(State{Status: StatusTimedOut, ErrorMessage: err.Error()})
		logger.WarnContext(ctx, "device location not acquired", zap.Error(err))
	}
}

func (p *Provider) set(s State) {
	p.state = s
	p.onChange(s)
}

func acquire(ctx context.Context, device Device, accuracy Accuracy) (geo.Coordinate, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "location.acquire")
	defer span.End()

	coord, err := acquireSteps(ctx, device, accuracy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return geo.Coordinate{}, err
	}
	span.SetAttributes(tracing.LocationAttributes(coord)...)
	return coord, nil
}

func acquireSteps(ctx context.Context, device Device, accuracy Accuracy) (geo.Coordinate, error) {
	granted, err := device.RequestPermission(ctx)
	if err != nil {
		return geo.Coordinate{}, classify(ctx, "permission request", err)
	}
	if !granted {
		return geo.Coordinate{}, ErrPermissionDenied
	}

	enabled, err := device.ServicesEnabled(ctx)
	if err != nil {
		return geo.Coordinate{}, classify(ctx, "services check", err)
	}
	if !enabled {
		return geo.Coordinate{}, ErrServicesDisabled
	}

	coord, err := device.CurrentPosition(ctx, accuracy)
	if err != nil {
		return geo.Coordinate{}, classify(ctx, "position request", err)
	}
	if !coord.Valid() {
		return geo.Coordinate{}, fmt.Errorf("device reported invalid coordinate %s", coord)
	}
	return coord, nil
}

func classify(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", step, ErrLocationTimeout)
	}
	return fmt.Errorf("%s: %w", step, err)
}
