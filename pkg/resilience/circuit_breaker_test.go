package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerTripsAndReturnsOpenError(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "test-breaker",
		Timeout:          50 * time.Millisecond,
		Interval:         50 * time.Millisecond,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	}, nil)

	ctx := context.Background()
	failingOp := func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 2; i++ {
		if _, err := breaker.Execute(ctx, failingOp); err == nil {
			t.Fatalf("expected failure on iteration %d", i)
		}
	}

	if breaker.Allow() {
		t.Fatalf("breaker should be open after consecutive failures")
	}

	if _, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "ok", nil
	}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerPassesThroughOnSuccess(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "success-breaker",
		Timeout:          time.Second,
		Interval:         time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 1,
	}, nil)

	ctx := context.Background()
	result, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "response", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.(string) != "response" {
		t.Fatalf("expected response, got %v", result)
	}
}

func TestCircuitBreakerIgnoresSuccessfulErrors(t *testing.T) {
	errEmpty := errors.New("no result")
	breaker := NewCircuitBreaker(Settings{
		Name:             "empty-result-breaker",
		Timeout:          time.Second,
		Interval:         time.Second,
		FailureThreshold: 1,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errEmpty)
		},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
			return nil, errEmpty
		})
		if !errors.Is(err, errEmpty) {
			t.Fatalf("expected errEmpty on iteration %d, got %v", i, err)
		}
	}

	if !breaker.Allow() {
		t.Fatalf("breaker must stay closed for successful errors")
	}
}

func TestCircuitBreakerFallbackOnOpen(t *testing.T) {
	breaker := NewCircuitBreaker(Settings{
		Name:             "fallback-breaker",
		Timeout:          time.Minute,
		Interval:         time.Minute,
		FailureThreshold: 1,
	}, func(ctx context.Context, err error) (interface{}, error) {
		return "fallback", nil
	})

	ctx := context.Background()
	_, _ = breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	result, err := breaker.Execute(ctx, func(context.Context) (interface{}, error) {
		return "primary", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(string) != "fallback" {
		t.Fatalf("expected fallback, got %v", result)
	}
}

func TestBuildSettings(t *testing.T) {
	s := BuildSettings("maps-osrm", 60, 30, 5, 2)
	if s.Interval != time.Minute || s.Timeout != 30*time.Second {
		t.Fatalf("unexpected durations: %+v", s)
	}
	if s.FailureThreshold != 5 || s.SuccessThreshold != 2 {
		t.Fatalf("unexpected thresholds: %+v", s)
	}
}

func TestNilBreakerExecutesDirectly(t *testing.T) {
	var breaker *CircuitBreaker
	result, err := breaker.Execute(context.Background(), func(context.Context) (interface{}, error) {
		return 7, nil
	})
	if err != nil || result.(int) != 7 {
		t.Fatalf("expected passthrough, got %v %v", result, err)
	}
	if !breaker.Allow() {
		t.Fatalf("nil breaker must allow")
	}
}
