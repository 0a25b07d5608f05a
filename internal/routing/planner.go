package routing

import (
	"context"

	"github.com/gustavodarosa/KidGo/pkg/eventloop"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// Router fetches a route for a request. *Service implements it.
type Router interface {
	Route(ctx context.Context, req RouteRequest) (Route, error)
}

// Planner keeps the route for the session's active origin/destination pair.
// Every method must be called on the session loop.
type Planner struct {
	loop      *eventloop.Loop
	router    Router
	onRequest func(RouteRequest)
	onResult  func(RouteResult)

	seq      uint64
	active   *RouteRequest
	inFlight bool
	current  *RouteResult
	// results holds Found and NotFound answers by key. Errors are never kept.
	results map[string]RouteResult
}

// NewPlanner creates a planner. onRequest fires whenever a fetch for a new key
// or a reissue begins, onResult whenever the active key gets an answer.
func NewPlanner(loop *eventloop.Loop, router Router, onRequest func(RouteRequest), onResult func(RouteResult)) *Planner {
	if onRequest == nil {
		onRequest = func(RouteRequest) {}
	}
	if onResult == nil {
		onResult = func(RouteResult) {}
	}
	return &Planner{
		loop:      loop,
		router:    router,
		onRequest: onRequest,
		onResult:  onResult,
		results:   make(map[string]RouteResult),
	}
}

// Plan makes req the active request. An unchanged key that is in flight or
// already answered is a no-op.
func (p *Planner) Plan(req RouteRequest) {
	key := req.Key()
	if p.active != nil && p.active.Key() == key {
		if p.inFlight || (p.current != nil && p.current.Status != StatusError) {
			return
		}
		p.fetch()
		return
	}

	r := req
	p.seq++
	p.active = &r
	p.current = nil
	p.inFlight = false

	if cached, ok := p.results[key]; ok {
		p.onRequest(req)
		p.apply(cached)
		return
	}
	p.fetch()
}

// Retry reissues the active request after an Error result.
func (p *Planner) Retry() bool {
	if p.active == nil || p.inFlight || p.current == nil || !p.current.Retryable() {
		return false
	}
	p.fetch()
	return true
}

// Reset drops the active request. An in-flight answer is discarded.
func (p *Planner) Reset() {
	p.seq++
	p.active = nil
	p.current = nil
	p.inFlight = false
}

// Current returns the result for the active key, if one has arrived.
func (p *Planner) Current() (RouteResult, bool) {
	if p.current == nil {
		return RouteResult{}, false
	}
	return *p.current, true
}

// Active returns the active request.
func (p *Planner) Active() (RouteRequest, bool) {
	if p.active == nil {
		return RouteRequest{}, false
	}
	return *p.active, true
}

// InFlight reports whether a fetch for the active key is outstanding.
func (p *Planner) InFlight() bool {
	return p.inFlight
}

func (p *Planner) fetch() {
	p.seq++
	seq := p.seq
	req := *p.active
	p.inFlight = true
	p.current = nil
	p.onRequest(req)

	router := p.router
	eventloop.Dispatch(p.loop, "routing.route", func(ctx context.Context) (Route, error) {
		return router.Route(ctx, req)
	}, func(route Route, err error) {
		p.complete(seq, req.Key(), route, err)
	})
}

func (p *Planner) complete(seq uint64, key string, route Route, err error) {
	if seq != p.seq {
		logger.DebugContext(p.loop.Context(), "discarding stale route",
			zap.String("route_key", key),
			zap.Uint64("seq", seq),
		)
		return
	}
	p.inFlight = false

	result := resultFor(key, route, err)
	if result.Status != StatusError {
		p.results[key] = result
	} else {
		logger.WarnContext(p.loop.Context(), "route fetch failed",
			zap.String("route_key", key),
			zap.Error(err),
		)
	}
	p.apply(result)
}

func (p *Planner) apply(result RouteResult) {
	r := result
	p.current = &r
	p.onResult(result)
}
