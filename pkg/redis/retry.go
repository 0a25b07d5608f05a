package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// CacheRetryConfig keeps cache retries short: a slow cache must never cost
// more than the upstream call it is meant to save.
func CacheRetryConfig() resilience.RetryConfig {
	config := resilience.DefaultRetryConfig()
	config.MaxAttempts = 2
	config.InitialBackoff = 25 * time.Millisecond
	config.MaxBackoff = 100 * time.Millisecond
	config.RetryableChecker = isRedisRetryable
	return config
}

// RetryableOperation executes a Redis operation with retry logic for transient failures
func RetryableOperation[T any](ctx context.Context, operation func(context.Context) (T, error), operationName string) (T, error) {
	config := CacheRetryConfig()

	result, err := resilience.RetryWithName(ctx, config, func(ctx context.Context) (interface{}, error) {
		return operation(ctx)
	}, operationName)

	if err != nil {
		return *new(T), err
	}

	return result.(T), nil
}

// transientReplies are server reply prefixes that clear on their own.
var transientReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "MASTERDOWN", "READONLY"}

// connectionFailures are dial and socket errors as they surface through the
// client, sometimes flattened to strings by proxies.
var connectionFailures = []string{"connection refused", "connection reset", "broken pipe", "i/o timeout", "pool timeout"}

func isRedisRetryable(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := err.Error()
	for _, prefix := range transientReplies {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	msg = strings.ToLower(msg)
	for _, failure := range connectionFailures {
		if strings.Contains(msg, failure) {
			return true
		}
	}
	return false
}
