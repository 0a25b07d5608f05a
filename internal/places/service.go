package places

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/config"
	apperrors "github.com/gustavodarosa/KidGo/pkg/errors"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/resilience"
	"github.com/gustavodarosa/KidGo/pkg/tracing"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "kidgo/places"

// Service chains place backends in priority order. A provider that fails is
// skipped in favour of the next one; each provider has its own breaker and
// outbound rate limiter.
type Service struct {
	backends []Backend
	byName   map[string]Backend

	mu       sync.RWMutex
	breakers map[string]*resilience.CircuitBreaker
	limiters map[string]*rate.Limiter
}

var _ Backend = (*Service)(nil)

// NewService creates a provider chain. rps and burst bound the outbound call
// rate of every provider; rps <= 0 disables limiting.
func NewService(backends []Backend, rps float64, burst int) (*Service, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one place backend is required")
	}
	if burst <= 0 {
		burst = 1
	}

	s := &Service{
		backends: backends,
		byName:   make(map[string]Backend, len(backends)),
		breakers: make(map[string]*resilience.CircuitBreaker),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, b := range backends {
		s.byName[b.Name()] = b
		if rps > 0 {
			s.limiters[b.Name()] = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
	return s, nil
}

// BreakerSettings builds breaker settings for a place provider. A missing
// place is a healthy answer and does not count against the provider.
func BreakerSettings(provider string, cfg config.CircuitBreakerSettings) resilience.Settings {
	settings := resilience.BuildSettings(fmt.Sprintf("places-%s", provider),
		cfg.IntervalSeconds, cfg.TimeoutSeconds, cfg.FailureThreshold, cfg.SuccessThreshold)
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrPlaceNotFound) || errors.Is(err, context.Canceled)
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

// Providers lists provider names in priority order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.backends))
	for i, b := range s.backends {
		names[i] = b.Name()
	}
	return names
}

// Search tries each provider until one answers.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]PlaceSuggestion, error) {
	return executeWithFallback(ctx, s, s.backends, "search", ErrSearchConfig, ErrSearchTransient,
		func(ctx context.Context, b Backend) ([]PlaceSuggestion, error) {
			return b.Search(ctx, req)
		})
}

// Details resolves against the provider that produced the place ID. Place
// IDs are provider specific, so there is no fallback when that provider is known.
func (s *Service) Details(ctx context.Context, req DetailsRequest) (PlaceDetails, error) {
	backends := s.backends
	if b, ok := s.byName[req.Provider]; ok {
		backends = []Backend{b}
	}
	return executeWithFallback(ctx, s, backends, "details", ErrDetailsConfig, ErrDetailsTransient,
		func(ctx context.Context, b Backend) (PlaceDetails, error) {
			return b.Details(ctx, req)
		})
}

func (s *Service) guards(provider string) (*resilience.CircuitBreaker, *rate.Limiter) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.breakers[provider], s.limiters[provider]
}

func executeWithFallback[T any](ctx context.Context, s *Service, backends []Backend, operation string, configErr, transientErr error, fn func(context.Context, Backend) (T, error)) (T, error) {
	var (
		zero      T
		lastErr   error
		transient bool
	)

	for i, backend := range backends {
		name := backend.Name()
		if i > 0 {
			providerFallbacksTotal.WithLabelValues(name, operation).Inc()
		}

		result, err := callProvider(ctx, s, backend, operation, transientErr, fn)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, ErrPlaceNotFound) {
			return zero, err
		}

		lastErr = err
		if errors.Is(err, configErr) {
			apperrors.CaptureErrorWithContext(ctx, err, map[string]interface{}{
				"provider":  name,
				"operation": operation,
			})
		} else {
			transient = true
		}
		logger.WarnContext(ctx, "Place provider failed",
			zap.String("provider", name),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}

	if transient {
		return zero, fmt.Errorf("all place providers failed: %w", ensureKind(lastErr, transientErr))
	}
	return zero, fmt.Errorf("all place providers failed: %w", ensureKind(lastErr, configErr))
}

func callProvider[T any](ctx context.Context, s *Service, backend Backend, operation string, transientErr error, fn func(context.Context, Backend) (T, error)) (T, error) {
	var result T
	name := backend.Name()
	breaker, limiter := s.guards(name)

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return result, ctx.Err()
			}
			return result, fmt.Errorf("%w: %s rate limited: %v", transientErr, name, err)
		}
	}

	started := time.Now()
	err := tracing.TraceExternalAPI(ctx, tracerName, name, operation, func(ctx context.Context) error {
		out, err := breaker.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			return fn(ctx, backend)
		})
		if err != nil {
			return err
		}
		result = out.(T)
		return nil
	}, tracing.ProviderKey.String(name))
	recordProviderCall(name, operation, started, err)

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return result, fmt.Errorf("%w: %s circuit open", transientErr, name)
	}
	return result, err
}

// ensureKind keeps an already classified error and wraps anything else.
func ensureKind(err, kind error) error {
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %v", kind, err)
}
