package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/config"
	redis "github.com/redis/go-redis/v9"
)

// Rule is the token bucket for one endpoint: Limit tokens refill per Window
// and up to Limit+Burst may accumulate.
type Rule struct {
	Limit  int
	Burst  int
	Window time.Duration
}

// Result is the outcome of one decision.
type Result struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
	ResetAfter time.Duration
}

// Limiter is a token bucket shared by every replica through Redis.
type Limiter struct {
	client redis.Cmdable
	cfg    config.RateLimitConfig
	script *redis.Script
	now    func() time.Time
}

// Refill, take one token if available, and persist. Times are milliseconds.
const tokenBucketScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

if now > ts then
    tokens = math.min(capacity, tokens + (now - ts) * rate)
    ts = now
end

local allowed = 0
if tokens >= 1 then
    allowed = 1
    tokens = tokens - 1
end

redis.call("HSET", key, "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", key, ttl)

local wait = 0
if allowed == 0 then
    wait = math.ceil((1 - tokens) / rate)
end
return {allowed, tostring(tokens), wait}
`

// NewLimiter creates a limiter over client.
func NewLimiter(client redis.Cmdable, cfg config.RateLimitConfig) *Limiter {
	return &Limiter{
		client: client,
		cfg:    cfg,
		script: redis.NewScript(tokenBucketScript),
		now:    time.Now,
	}
}

// Enabled reports whether decisions are enforced.
func (l *Limiter) Enabled() bool {
	return l != nil && l.cfg.Enabled
}

// RuleFor returns the rule for an endpoint key such as
// "POST:/api/v1/sessions".
func (l *Limiter) RuleFor(endpoint string) Rule {
	rule := Rule{Limit: l.cfg.DefaultLimit, Burst: l.cfg.DefaultBurst, Window: l.cfg.Window()}

	if o, ok := l.cfg.EndpointOverrides[endpoint]; ok {
		if o.Limit > 0 {
			rule.Limit = o.Limit
		}
		if o.Burst >= 0 {
			rule.Burst = o.Burst
		}
		if o.WindowSeconds > 0 {
			rule.Window = time.Duration(o.WindowSeconds) * time.Second
		}
	}
	if rule.Window <= 0 {
		rule.Window = time.Minute
	}
	return rule
}

// Allow takes a token for identity on endpoint. A disabled limiter or a
// rule without a limit always allows.
func (l *Limiter) Allow(ctx context.Context, endpoint, identity string, rule Rule) (Result, error) {
	if !l.Enabled() || rule.Limit <= 0 {
		return Result{Allowed: true, Remaining: rule.Limit, Limit: rule.Limit}, nil
	}

	windowMs := rule.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = time.Minute.Milliseconds()
	}
	rate := float64(rule.Limit) / float64(windowMs)
	capacity := math.Max(1, float64(rule.Limit+rule.Burst))

	key := fmt.Sprintf("%s:%s:%s", l.cfg.RedisPrefix, endpoint, identity)
	raw, err := l.script.Run(ctx, l.client, []string{key},
		l.now().UnixMilli(), formatFloat(rate), formatFloat(capacity), windowMs*2,
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, errors.New("unexpected rate limit script response")
	}
	tokens := toFloat(values[1])
	wait := time.Duration(toInt(values[2])) * time.Millisecond

	res := Result{
		Allowed:   toInt(values[0]) == 1,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Limit:     rule.Limit,
	}
	if res.Allowed {
		res.ResetAfter = time.Duration(math.Ceil((capacity-tokens)/rate)) * time.Millisecond
	} else {
		res.RetryAfter = wait
		res.ResetAfter = wait
	}
	return res, nil
}

// ScriptHash is the SHA1 the limiter passes to EVALSHA.
func (l *Limiter) ScriptHash() string {
	return l.script.Hash()
}

// WithNow overrides the time source.
func (l *Limiter) WithNow(now func() time.Time) {
	l.now = now
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 10, 64)
}

func toInt(value interface{}) int {
	switch v := value.(type) {
	case int64:
		return int(v)
	case string:
		i, _ := strconv.Atoi(v)
		return i
	default:
		return 0
	}
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
