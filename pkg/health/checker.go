package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// Checker is a liveness check that returns an error if unhealthy. It is the
// shape common.HealthCheckWithDeps expects.
type Checker func() error

// Probe inspects one dependency and returns a short status message.
type Probe func(ctx context.Context) (string, error)

// Checker adapts the probe to a liveness check bounded by timeout.
func (p Probe) Checker(timeout time.Duration) Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := p(ctx)
		return err
	}
}

// RedisProbe pings Redis.
func RedisProbe(client redis.UniversalClient) Probe {
	return func(ctx context.Context) (string, error) {
		pong, err := client.Ping(ctx).Result()
		if err != nil {
			return "", fmt.Errorf("redis ping failed: %w", err)
		}
		return pong, nil
	}
}

// PingProbe wraps a context-free ping such as the event bus round trip.
func PingProbe(name string, ping func() error) Probe {
	return func(ctx context.Context) (string, error) {
		done := make(chan error, 1)
		go func() { done <- ping() }()

		select {
		case err := <-done:
			if err != nil {
				return "", fmt.Errorf("%s ping failed: %w", name, err)
			}
			return "ok", nil
		case <-ctx.Done():
			return "", fmt.Errorf("%s ping: %w", name, ctx.Err())
		}
	}
}

// HTTPProbe issues a GET against url. Redirects are not followed; any status
// below 500 means the upstream is reachable.
func HTTPProbe(url string) Probe {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("http request failed: %w", err)
		}
		defer resp.Body.Close()

		msg := fmt.Sprintf("status code: %d", resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return msg, fmt.Errorf("unhealthy %s", msg)
		}
		return msg, nil
	}
}
