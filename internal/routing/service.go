package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/cache"
	"github.com/gustavodarosa/KidGo/pkg/config"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/resilience"
	"github.com/gustavodarosa/KidGo/pkg/tracing"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	tracerName = "kidgo/routing"

	defaultFlightTimeout = 30 * time.Second
)

// Service provides routing with caching, fallbacks, and resilience. Identical
// requests from concurrent sessions share one upstream call.
type Service struct {
	backends []Backend
	cache    *cache.Manager
	cacheTTL time.Duration
	keys     cache.Keys
	group    singleflight.Group

	flightTimeout time.Duration

	mu       sync.RWMutex
	breakers map[string]*resilience.CircuitBreaker
	limiters map[string]*rate.Limiter
}

var _ Router = (*Service)(nil)

// NewService creates a routing chain. A nil or disabled cache skips caching.
func NewService(backends []Backend, routeCache *cache.Manager, cacheTTL time.Duration, rps float64, burst int) (*Service, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one routing backend is required")
	}
	if burst <= 0 {
		burst = 1
	}

	s := &Service{
		backends:      backends,
		cache:         routeCache,
		cacheTTL:      cacheTTL,
		flightTimeout: defaultFlightTimeout,
		breakers:      make(map[string]*resilience.CircuitBreaker),
		limiters:      make(map[string]*rate.Limiter),
	}
	if rps > 0 {
		for _, b := range backends {
			s.limiters[b.Name()] = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
	return s, nil
}

// BreakerSettings builds breaker settings for a routing provider. An
// unroutable pair is a valid answer and does not count as a failure.
func BreakerSettings(provider string, cfg config.CircuitBreakerSettings) resilience.Settings {
	settings := resilience.BuildSettings(fmt.Sprintf("routing-%s", provider),
		cfg.IntervalSeconds, cfg.TimeoutSeconds, cfg.FailureThreshold, cfg.SuccessThreshold)
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNoRoute) || errors.Is(err, context.Canceled)
	}
	return settings
}

// SetCircuitBreaker attaches a breaker to a provider.
func (s *Service) SetCircuitBreaker(provider string, cb *resilience.CircuitBreaker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakers[provider] = cb
}

// Breakers returns the attached breakers keyed by provider.
func (s *Service) Breakers() map[string]*resilience.CircuitBreaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*resilience.CircuitBreaker, len(s.breakers))
	for k, v := range s.breakers {
		out[k] = v
	}
	return out
}

// Name returns the chain name
func (s *Service) Name() string {
	return "chain"
}

// Route returns a cached route or fetches one through the provider chain.
func (s *Service) Route(ctx context.Context, req RouteRequest) (Route, error) {
	key := req.Key()
	cacheKey := s.keys.Route(key)

	var cached Route
	if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
		routeCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		logger.WarnContext(ctx, "route cache read failed", zap.Error(err))
	}
	if s.cache.Enabled() {
		routeCacheTotal.WithLabelValues("miss").Inc()
	}

	// The shared call must outlive any single waiter's cancellation.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()

		route, err := s.executeWithFallback(flightCtx, req)
		if err != nil {
			return Route{}, err
		}
		if err := s.cache.Set(flightCtx, cacheKey, route, s.cacheTTL); err != nil {
			logger.WarnContext(ctx, "route cache write failed", zap.Error(err))
		}
		return route, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			routeSharedTotal.Inc()
		}
		return res.Val.(Route), res.Err
	case <-ctx.Done():
		return Route{}, ctx.Err()
	}
}

func (s *Service) executeWithFallback(ctx context.Context, req RouteRequest) (Route, error) {
	var lastErr error
	for i, backend := range s.backends {
		name := backend.Name()
		if i > 0 {
			routeFallbacksTotal.WithLabelValues(name).Inc()
		}

		route, err := s.callProvider(ctx, backend, req)
		if err == nil {
			return route, nil
		}
		if errors.Is(err, ErrNoRoute) || errors.Is(err, context.Canceled) {
			return Route{}, err
		}

		lastErr = err
		logger.WarnContext(ctx, "Routing provider failed", zap.Error(err), zap.String("provider", name))
	}

	if errors.Is(lastErr, ErrRouteTransient) {
		return Route{}, fmt.Errorf("all routing providers failed: %w", lastErr)
	}
	return Route{}, fmt.Errorf("all routing providers failed: %w: %v", ErrRouteTransient, lastErr)
}

func (s *Service) callProvider(ctx context.Context, backend Backend, req RouteRequest) (Route, error) {
	name := backend.Name()
	s.mu.RLock()
	breaker, limiter := s.breakers[name], s.limiters[name]
	s.mu.RUnlock()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return Route{}, fmt.Errorf("%w: %s rate limited: %v", ErrRouteTransient, name, err)
		}
	}

	var route Route
	started := time.Now()
	err := tracing.TraceExternalAPI(ctx, tracerName, name, "route", func(ctx context.Context) error {
		out, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return backend.Route(ctx, req)
		})
		if err != nil {
			return err
		}
		route = out.(Route)
		tracing.AddSpanAttributes(ctx, tracing.ResultCountKey.Int(len(route.Polyline)))
		return nil
	}, tracing.ProviderKey.String(name), tracing.RouteKeyKey.String(req.Key()))
	recordProviderCall(name, started, err)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Route{}, fmt.Errorf("%w: %s circuit open", ErrRouteTransient, name)
	}
	return route, err
}
