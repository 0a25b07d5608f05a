package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gustavodarosa/KidGo/pkg/validation"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Tracing    TracingConfig
	Sentry     SentryConfig
	Resilience ResilienceConfig
	Maps       MapsConfig
	Pipeline   PipelineConfig
	Pricing    PricingConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port                  string `validate:"required,numeric"`
	Environment           string `validate:"required,oneof=development staging production test"`
	ServiceName           string `validate:"required"`
	Version               string
	ReadTimeout           int    `validate:"gt=0"`
	WriteTimeout          int    `validate:"gt=0"`
	RequestTimeoutSeconds int    `validate:"gt=0,lte=120"`
	CORSOrigins           string // Comma-separated list of allowed origins
}

// RedisConfig holds Redis configuration. The route cache is skipped when
// Enabled is false.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int `validate:"gte=0,lte=15"`
}

// NATSConfig holds the event bus connection.
type NATSConfig struct {
	Enabled bool
	URL     string `validate:"required_if=Enabled true"`
}

// TracingConfig holds OpenTelemetry exporter settings.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string  `validate:"required_if=Enabled true"`
	SampleRate   float64 `validate:"gte=0,lte=1"`
}

// SentryConfig holds error reporting settings. An empty DSN disables it.
type SentryConfig struct {
	DSN              string
	Release          string
	SampleRate       float64 `validate:"gte=0,lte=1"`
	TracesSampleRate float64 `validate:"gte=0,lte=1"`
	Debug            bool
}

// ResilienceConfig groups runtime resilience controls
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig captures default and per-service breaker tuning
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
	ServiceOverrides map[string]CircuitBreakerSettings
}

// CircuitBreakerSettings overrides defaults for a specific upstream service
type CircuitBreakerSettings struct {
	FailureThreshold int `json:"failure_threshold"`
	SuccessThreshold int `json:"success_threshold"`
	TimeoutSeconds   int `json:"timeout_seconds"`
	IntervalSeconds  int `json:"interval_seconds"`
}

// MapsConfig selects and tunes the place-search and routing providers.
type MapsConfig struct {
	GoogleAPIKey       string
	HEREAPIKey         string
	HEREDiscoverURL    string   `validate:"required,url"`
	HERELookupURL      string   `validate:"required,url"`
	OSRMURL            string   `validate:"required,url"`
	PlacesProviders    []string `validate:"min=1,dive,oneof=google here"`
	RoutingProviders   []string `validate:"min=1,dive,oneof=osrm google"`
	GoogleSearchMode   string   `validate:"oneof=textsearch autocomplete"`
	Language           string   `validate:"required"`
	Region             string
	SearchRadiusMeters int     `validate:"gt=0,lte=50000"`
	RequestsPerSecond  float64 `validate:"gt=0"`
	Burst              int     `validate:"gt=0"`
	HTTPTimeoutSeconds int     `validate:"gt=0,lte=60"`
	RouteCacheTTLMins  int     `validate:"gte=0"`
}

// PipelineConfig tunes the per-session search, location and viewport timings.
type PipelineConfig struct {
	DebounceMs             int     `validate:"gte=0,lte=5000"`
	MinQueryLength         int     `validate:"gte=1"`
	LocationTimeoutSeconds int     `validate:"gt=0,lte=120"`
	SettleDelayMs          int     `validate:"gte=0,lte=10000"`
	ViewportPadding        float64 `validate:"gte=0,lte=1"`
	ViewportMinDelta       float64 `validate:"gt=0"`
	SessionIdleTTLMinutes  int     `validate:"gt=0"`
	// StaticLocation ("lat,lng") replaces client location reports, for
	// kiosks and demos.
	StaticLocation string
}

// RateLimitConfig holds the per-client API limits. Limits are shared across
// replicas through Redis, so they only apply when Redis is enabled.
type RateLimitConfig struct {
	Enabled           bool
	WindowSeconds     int `validate:"gt=0"`
	DefaultLimit      int `validate:"gte=0"`
	DefaultBurst      int `validate:"gte=0"`
	RedisPrefix       string
	EndpointOverrides map[string]EndpointRateLimitConfig
}

// EndpointRateLimitConfig customizes the limit of one "METHOD:/route" key
type EndpointRateLimitConfig struct {
	Limit         int `json:"limit"`
	Burst         int `json:"burst"`
	WindowSeconds int `json:"window_seconds"`
}

// PricingConfig feeds the default rate-based pricer.
type PricingConfig struct {
	BaseFare    float64 `validate:"gte=0"`
	PerKm       float64 `validate:"gte=0"`
	PerMinute   float64 `validate:"gte=0"`
	MinimumFare float64 `validate:"gte=0"`
	Currency    string  `validate:"required,len=3"`
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:                  getEnv("PORT", "8080"),
			Environment:           getEnv("ENVIRONMENT", "development"),
			ServiceName:           serviceName,
			Version:               getEnv("SERVICE_VERSION", "1.0.0"),
			ReadTimeout:           getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout:          getEnvAsInt("WRITE_TIMEOUT", 10),
			RequestTimeoutSeconds: getEnvAsInt("DEFAULT_REQUEST_TIMEOUT", 15),
			CORSOrigins:           getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			Enabled: getEnvAsBool("NATS_ENABLED", false),
			URL:     getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("TRACING_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRate:   getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		Sentry: SentryConfig{
			DSN:              getEnv("SENTRY_DSN", ""),
			Release:          getEnv("SENTRY_RELEASE", ""),
			SampleRate:       getEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
			TracesSampleRate: getEnvAsFloat("SENTRY_TRACES_SAMPLE_RATE", 0.1),
			Debug:            getEnvAsBool("SENTRY_DEBUG", false),
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          getEnvAsBool("CB_ENABLED", true),
				FailureThreshold: getEnvAsInt("CB_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("CB_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("CB_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("CB_INTERVAL_SECONDS", 60),
			},
		},
		Maps: MapsConfig{
			GoogleAPIKey:       getEnv("GOOGLE_MAPS_API_KEY", ""),
			HEREAPIKey:         getEnv("HERE_API_KEY", ""),
			HEREDiscoverURL:    getEnv("HERE_DISCOVER_URL", "https://discover.search.hereapi.com/v1"),
			HERELookupURL:      getEnv("HERE_LOOKUP_URL", "https://lookup.search.hereapi.com/v1"),
			OSRMURL:            getEnv("OSRM_URL", "https://router.project-osrm.org"),
			PlacesProviders:    getEnvAsList("PLACES_PROVIDERS", []string{"google", "here"}),
			RoutingProviders:   getEnvAsList("ROUTING_PROVIDERS", []string{"osrm", "google"}),
			GoogleSearchMode:   getEnv("GOOGLE_SEARCH_MODE", "textsearch"),
			Language:           getEnv("MAPS_LANGUAGE", "pt-BR"),
			Region:             getEnv("MAPS_REGION", "br"),
			SearchRadiusMeters: getEnvAsInt("SEARCH_RADIUS_METERS", 5000),
			RequestsPerSecond:  getEnvAsFloat("MAPS_REQUESTS_PER_SECOND", 10),
			Burst:              getEnvAsInt("MAPS_BURST", 20),
			HTTPTimeoutSeconds: getEnvAsInt("HTTP_CLIENT_TIMEOUT", 10),
			RouteCacheTTLMins:  getEnvAsInt("ROUTE_CACHE_TTL_MINUTES", 10),
		},
		Pipeline: PipelineConfig{
			DebounceMs:             getEnvAsInt("SEARCH_DEBOUNCE_MS", 500),
			MinQueryLength:         getEnvAsInt("SEARCH_MIN_QUERY_LENGTH", 3),
			LocationTimeoutSeconds: getEnvAsInt("LOCATION_TIMEOUT_SECONDS", 20),
			SettleDelayMs:          getEnvAsInt("VIEWPORT_SETTLE_MS", 500),
			ViewportPadding:        getEnvAsFloat("VIEWPORT_PADDING", 0.15),
			ViewportMinDelta:       getEnvAsFloat("VIEWPORT_MIN_DELTA", 0.005),
			SessionIdleTTLMinutes:  getEnvAsInt("SESSION_IDLE_TTL_MINUTES", 30),
			StaticLocation:         getEnv("STATIC_LOCATION", ""),
		},
		Pricing: PricingConfig{
			BaseFare:    getEnvAsFloat("PRICING_BASE_FARE", 5.0),
			PerKm:       getEnvAsFloat("PRICING_PER_KM", 2.0),
			PerMinute:   getEnvAsFloat("PRICING_PER_MINUTE", 0.35),
			MinimumFare: getEnvAsFloat("PRICING_MINIMUM_FARE", 8.0),
			Currency:    getEnv("PRICING_CURRENCY", "BRL"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("RATE_LIMIT_ENABLED", false),
			WindowSeconds: getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			DefaultLimit:  getEnvAsInt("RATE_LIMIT_DEFAULT_LIMIT", 300),
			DefaultBurst:  getEnvAsInt("RATE_LIMIT_DEFAULT_BURST", 60),
			RedisPrefix:   getEnv("RATE_LIMIT_REDIS_PREFIX", "kidgo:ratelimit"),
		},
	}

	if overrides := getEnv("RATE_LIMIT_ENDPOINT_OVERRIDES", ""); overrides != "" {
		var endpoints map[string]EndpointRateLimitConfig
		if err := json.Unmarshal([]byte(overrides), &endpoints); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_ENDPOINT_OVERRIDES value: %w", err)
		}
		cfg.RateLimit.EndpointOverrides = endpoints
	}

	if breakerOverrides := getEnv("CB_SERVICE_OVERRIDES", ""); breakerOverrides != "" {
		var serviceConfig map[string]CircuitBreakerSettings
		if err := json.Unmarshal([]byte(breakerOverrides), &serviceConfig); err != nil {
			return nil, fmt.Errorf("invalid CB_SERVICE_OVERRIDES value: %w", err)
		}
		cfg.Resilience.CircuitBreaker.ServiceOverrides = serviceConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// SettingsFor returns effective breaker settings for a specific upstream service name
func (c CircuitBreakerConfig) SettingsFor(service string) CircuitBreakerSettings {
	settings := CircuitBreakerSettings{
		FailureThreshold: c.FailureThreshold,
		SuccessThreshold: c.SuccessThreshold,
		TimeoutSeconds:   c.TimeoutSeconds,
		IntervalSeconds:  c.IntervalSeconds,
	}

	if override, ok := c.ServiceOverrides[service]; ok {
		if override.FailureThreshold > 0 {
			settings.FailureThreshold = override.FailureThreshold
		}
		if override.SuccessThreshold > 0 {
			settings.SuccessThreshold = override.SuccessThreshold
		}
		if override.TimeoutSeconds > 0 {
			settings.TimeoutSeconds = override.TimeoutSeconds
		}
		if override.IntervalSeconds > 0 {
			settings.IntervalSeconds = override.IntervalSeconds
		}
	}

	if settings.SuccessThreshold <= 0 {
		settings.SuccessThreshold = 1
	}
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = 5
	}
	if settings.TimeoutSeconds <= 0 {
		settings.TimeoutSeconds = 30
	}
	if settings.IntervalSeconds <= 0 {
		settings.IntervalSeconds = 60
	}

	return settings
}

// Window returns the default rate limit window.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// RequestTimeout returns the REST request deadline.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HTTPTimeout returns the per-call timeout of provider HTTP clients.
func (c MapsConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// RouteCacheTTL returns how long found routes stay cached.
func (c MapsConfig) RouteCacheTTL() time.Duration {
	return time.Duration(c.RouteCacheTTLMins) * time.Minute
}

func (c PipelineConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

func (c PipelineConfig) LocationTimeout() time.Duration {
	return time.Duration(c.LocationTimeoutSeconds) * time.Second
}

func (c PipelineConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

func (c PipelineConfig) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMinutes) * time.Minute
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
