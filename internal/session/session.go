package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gustavodarosa/KidGo/internal/location"
	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/internal/quote"
	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/gustavodarosa/KidGo/internal/viewport"
	"github.com/gustavodarosa/KidGo/pkg/clock"
	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Places   places.Backend
	Router   routing.Router
	Pricer   quote.Pricer
	Currency string
	Clock    clock.Clock

	Search          places.EngineConfig
	LocationTimeout time.Duration
	Fitter          viewport.Fitter
	SettleDelay     time.Duration

	// StaticLocation replaces client location reports with a fixed position.
	StaticLocation *geo.Coordinate
}

// Emitter delivers session events to subscribers.
type Emitter interface {
	Emit(sessionID, eventType string, payload interface{})
}

// Session is one rider's scheduling pipeline. Its state lives on a private
// event loop; exported methods may be called from any goroutine.
type Session struct {
	id        string
	createdAt time.Time
	loop      *eventloop.Loop
	clock     clock.Clock
	emitter   Emitter
	reporter  *location.ClientDevice

	lastActive atomic.Int64
	closed     atomic.Bool

	// Loop-confined below.
	state     State
	locator   *location.Provider
	tokens    *places.TokenManager
	engine    *places.Engine
	resolver  *places.Resolver
	planner   *routing.Planner
	estimator *quote.Estimator
	camera    *viewport.Controller
	queries   map[places.Field]string
	shownInit bool
}

func newSession(parent context.Context, id string, deps Dependencies, emitter Emitter) *Session {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}

	loop := eventloop.New(logger.ContextWithSessionID(parent, id))
	s := &Session{
		id:        id,
		createdAt: clk.Now(),
		loop:      loop,
		clock:     clk,
		emitter:   emitter,
		state:     StateIdle,
		queries:   make(map[places.Field]string),
	}
	s.touch()

	var device location.Device
	if deps.StaticLocation != nil {
		device = location.StaticDevice{Coordinate: *deps.StaticLocation}
	} else {
		s.reporter = location.NewClientDevice()
		device = s.reporter
	}

	s.locator = location.NewProvider(loop, device, deps.LocationTimeout, s.onLocation)
	s.tokens = places.NewTokenManager(clk)
	s.engine = places.NewEngine(loop, clk, deps.Places, s.tokens, deps.Search, s.onSearch)
	s.resolver = places.NewResolver(loop, deps.Places, s.engine, s.tokens, deps.Search.Language, s.onResolved)
	s.planner = routing.NewPlanner(loop, deps.Router, s.onRouteRequest, s.onRoute)
	s.estimator = quote.NewEstimator(loop.Context(), deps.Pricer, deps.Currency, s.onQuote)
	s.camera = viewport.NewController(loop, clk, cameraSurface{s}, deps.Fitter, deps.SettleDelay)
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// LastActive returns when the session last received input.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

// Acquire starts a device location acquisition.
func (s *Session) Acquire(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.locator.Acquire()
		return nil
	})
}

// Report feeds a client location report to the session's device.
func (s *Session) Report(r location.Report) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.reporter == nil {
		return ErrNoClientDevice
	}
	s.touch()
	s.reporter.Report(r)
	return nil
}

// Focus opens the billing interaction for a field.
func (s *Session) Focus(ctx context.Context, field places.Field) (places.SearchSession, error) {
	var out places.SearchSession
	err := s.call(ctx, func() error {
		out = s.tokens.Start()
		return nil
	})
	return out, err
}

// Search records a keystroke for field.
func (s *Session) Search(ctx context.Context, field places.Field, query string) error {
	return s.call(ctx, func() error {
		s.queries[field] = query
		s.engine.Search(field, query, s.bias(field))
		s.setState(StateSearching)
		return nil
	})
}

// RetrySearch reissues the field's last failed query.
func (s *Session) RetrySearch(ctx context.Context, field places.Field) error {
	return s.call(ctx, func() error {
		if !s.engine.Retry(field) {
			return ErrRetryRefused
		}
		s.setState(StateSearching)
		return nil
	})
}

// Select resolves one of the field's suggestions.
func (s *Session) Select(ctx context.Context, field places.Field, placeID string) error {
	return s.call(ctx, func() error {
		suggestion, ok := s.engine.Suggestion(field, placeID)
		if !ok {
			return ErrUnknownPlace
		}
		s.resolver.Resolve(field, suggestion)
		s.setState(StateResolvingDetails)
		return nil
	})
}

// Abandon ends the field's interaction without a selection.
func (s *Session) Abandon(ctx context.Context, field places.Field) error {
	return s.call(ctx, func() error {
		s.resolver.Abandon(field)
		s.queries[field] = ""
		return nil
	})
}

// RetryRoute reissues a failed route fetch.
func (s *Session) RetryRoute(ctx context.Context) error {
	return s.call(ctx, func() error {
		if !s.planner.Retry() {
			return ErrRetryRefused
		}
		return nil
	})
}

// MapReady records that the client's map can render.
func (s *Session) MapReady(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.camera.Ready()
		return nil
	})
}

// Confirm turns the quoted route into a ride request for riders and ends the
// pipeline. Riders must name a child and confirm the car seats.
func (s *Session) Confirm(ctx context.Context, riders Riders) (RideRequest, error) {
	if err := riders.check(); err != nil {
		return RideRequest{}, err
	}
	var ride RideRequest
	err := s.call(ctx, func() error {
		q := s.estimator.Current()
		if s.state != StateQuoteReady || q.Amount == nil {
			return ErrNotConfirmable
		}
		req, _ := s.planner.Active()
		route, _ := s.planner.Current()

		ride = RideRequest{
			ID:              uuid.NewString(),
			SessionID:       s.id,
			Origin:          s.endpoint(places.FieldOrigin, req.Origin),
			Destination:     s.endpoint(places.FieldDestination, req.Destination),
			RouteKey:        route.Key,
			RouteProvider:   route.Provider,
			DistanceMeters:  route.DistanceMeters,
			DurationSeconds: route.DurationSeconds,
			EstimatedFare:   *q.Amount,
			Currency:        q.Currency,
			Children:        append([]string(nil), riders.ChildIDs...),
			CarSeats:        riders.seatRequirements(),
			RequestedAt:     s.clock.Now().UTC(),
		}
		s.setState(StateConfirmed)
		s.emit(EventConfirmed, ride)
		return nil
	})
	return ride, err
}

// Snapshot returns the session's visible state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := s.loop.Call(ctx, func() { snap = s.snapshot() }); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// close stops the pipeline and returns the state it ended in.
func (s *Session) close() State {
	if !s.closed.CompareAndSwap(false, true) {
		return StateClosed
	}

	last := StateClosed
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.loop.Call(ctx, func() {
		last = s.state
		s.engine.Stop()
		s.camera.Stop()
		if !s.state.Terminal() {
			s.setState(StateClosed)
		}
	})
	s.loop.Close()
	return last
}

func (s *Session) call(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	s.touch()

	var err error
	if callErr := s.loop.Call(ctx, func() {
		if s.state.Terminal() {
			err = ErrSessionClosed
			return
		}
		err = fn()
	}); callErr != nil {
		return callErr
	}
	return err
}

func (s *Session) touch() {
	s.lastActive.Store(s.clock.Now().UnixNano())
}

// bias ranks a field's suggestions around the device, falling back to the
// resolved origin when searching the destination.
func (s *Session) bias(field places.Field) *geo.Coordinate {
	if c, ok := s.locator.Coordinate(); ok {
		return &c
	}
	if field == places.FieldDestination {
		if d, ok := s.resolver.Details(places.FieldOrigin); ok {
			c := d.Coordinate
			return &c
		}
	}
	return nil
}

func (s *Session) endpoint(field places.Field, at geo.Coordinate) Endpoint {
	if d, ok := s.resolver.Details(field); ok {
		return Endpoint{PlaceID: d.ID, Name: d.Name, Address: d.Address, Coordinate: d.Coordinate}
	}
	return Endpoint{Name: "Current location", Coordinate: at}
}

// maybePlan starts route planning once both endpoints are known. The origin
// defaults to the device location.
func (s *Session) maybePlan() {
	dest, ok := s.resolver.Details(places.FieldDestination)
	if !ok {
		return
	}

	var origin geo.Coordinate
	if d, ok := s.resolver.Details(places.FieldOrigin); ok {
		origin = d.Coordinate
	} else if c, ok := s.locator.Coordinate(); ok {
		origin = c
	} else {
		return
	}

	s.planner.Plan(routing.RouteRequest{Origin: origin, Destination: dest.Coordinate})
	s.settleRouteState()
}

// settleRouteState restores the route stage after a no-op plan.
func (s *Session) settleRouteState() {
	r, ok := s.planner.Current()
	if !ok || s.planner.InFlight() {
		return
	}
	s.setState(routeState(r.Status))
	if r.Status == routing.StatusFound && s.estimator.Current().Status == quote.StatusReady {
		s.setState(StateQuoteReady)
	}
}

func routeState(status routing.Status) State {
	switch status {
	case routing.StatusFound:
		return StateRouteFound
	case routing.StatusNotFound:
		return StateRouteNotFound
	default:
		return StateRouteError
	}
}

func (s *Session) onLocation(st location.State) {
	s.emit(EventLocation, st)

	early := s.state == StateIdle || s.state == StateAcquiringLocation ||
		s.state == StateLocationError || s.state == StateLocationReady

	switch st.Status {
	case location.StatusRequesting:
		if early {
			s.setState(StateAcquiringLocation)
		}
	case location.StatusGranted:
		if early {
			s.setState(StateLocationReady)
		}
		if !s.shownInit && st.Coordinate != nil {
			s.shownInit = true
			if _, routed := s.planner.Active(); !routed {
				s.camera.Show(viewport.InitialRegion(*st.Coordinate))
			}
		}
		s.maybePlan()
	default:
		if early {
			s.setState(StateLocationError)
		}
	}
}

func (s *Session) onSearch(u places.SearchUpdate) {
	if u.Err != nil {
		s.emit(EventSearchError, FieldError{Field: u.Field, ErrorInfo: describe(u.Err)})
		s.setState(StateSearchError)
		return
	}
	s.emit(EventSuggestions, u)
	if len(u.Suggestions) > 0 {
		s.setState(StateSuggestionsReady)
	}
}

func (s *Session) onResolved(r places.Resolution) {
	if r.Err != nil {
		s.emit(EventDetailsError, FieldError{Field: r.Field, ErrorInfo: describe(r.Err)})
		s.setState(StateDetailsError)
		return
	}
	s.emit(EventFieldResolved, FieldResolved{Field: r.Field, Details: *r.Details})
	s.setState(StateFieldResolved)
	s.maybePlan()
}

func (s *Session) onRouteRequest(req routing.RouteRequest) {
	s.estimator.Begin(req.Key())
	s.setState(StateRoutePlanning)
}

func (s *Session) onRoute(r routing.RouteResult) {
	s.emit(EventRoute, r)
	s.setState(routeState(r.Status))
	if req, ok := s.planner.Active(); ok {
		s.camera.Request(req.Origin, req.Destination, r.Polyline)
	}
	s.estimator.Apply(r)
}

func (s *Session) onQuote(q quote.RideQuote) {
	s.emit(EventQuote, q)
	if q.Status == quote.StatusReady && s.state == StateRouteFound {
		s.setState(StateQuoteReady)
	}
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	stateTransitionsTotal.WithLabelValues(string(next)).Inc()
	logger.DebugContext(s.loop.Context(), "session state changed",
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	s.emit(EventState, StateChange{State: next, From: prev})
}

func (s *Session) emit(eventType string, payload interface{}) {
	if s.emitter != nil {
		s.emitter.Emit(s.id, eventType, payload)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Location:  s.locator.State(),
		Fields:    make(map[places.Field]FieldSnapshot, len(places.Fields)),
		Quote:     s.estimator.Current(),
		CreatedAt: s.createdAt,
	}
	for _, f := range places.Fields {
		fs := FieldSnapshot{
			Query:       s.queries[f],
			Suggestions: s.engine.Suggestions(f),
			Error:       describePtr(s.engine.Err(f)),
			Resolving:   s.resolver.Pending(f),
		}
		if fs.Suggestions == nil {
			fs.Suggestions = []places.PlaceSuggestion{}
		}
		if d, ok := s.resolver.Details(f); ok {
			fs.Details = &d
		}
		snap.Fields[f] = fs
	}
	if r, ok := s.planner.Current(); ok {
		snap.Route = &r
	}
	if region, ok := s.camera.Applied(); ok {
		snap.Viewport = &region
	} else if region, ok := s.camera.Pending(); ok {
		snap.Viewport = &region
	}
	return snap
}

type cameraSurface struct {
	s *Session
}

func (c cameraSurface) FitCamera(region viewport.Region) {
	c.s.emit(EventViewport, region)
}
