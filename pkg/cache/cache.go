package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/gustavodarosa/KidGo/pkg/redis"
	"github.com/gustavodarosa/KidGo/pkg/tracing"
)

const tracerName = "kidgo/cache"

// ErrMiss is returned by Get when the key is absent or caching is disabled.
var ErrMiss = redisclient.ErrCacheMiss

// Manager handles caching operations with JSON serialization. A nil Redis
// client turns every call into a miss or a no-op.
type Manager struct {
	redis  redisclient.ClientInterface
	prefix string
}

// NewManager creates a new cache manager
func NewManager(redis redisclient.ClientInterface, prefix string) *Manager {
	return &Manager{redis: redis, prefix: prefix}
}

// Enabled reports whether a backing store is configured.
func (m *Manager) Enabled() bool {
	return m != nil && m.redis != nil
}

// Get retrieves a cached value and unmarshals it into result
func (m *Manager) Get(ctx context.Context, key string, result interface{}) error {
	if !m.Enabled() {
		return ErrMiss
	}

	key = m.prefix + key
	var data string
	err := tracing.TraceRedisCommand(ctx, tracerName, "GET", key, func(ctx context.Context) error {
		var err error
		data, err = m.redis.GetString(ctx, key)
		return err
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), result); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// Set marshals and caches a value with expiration
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !m.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	key = m.prefix + key
	return tracing.TraceRedisCommand(ctx, tracerName, "SET", key, func(ctx context.Context) error {
		return m.redis.SetWithExpiration(ctx, key, string(data), ttl)
	})
}

// HashKey digests parts into a fixed-length key segment.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Keys provides cache key generation
type Keys struct{}

// Route keys a driving route by its request identity.
func (Keys) Route(routeKey string) string {
	return "route:" + HashKey(routeKey)
}
