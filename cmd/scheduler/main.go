package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/internal/quote"
	"github.com/gustavodarosa/KidGo/internal/routing"
	"github.com/gustavodarosa/KidGo/internal/session"
	"github.com/gustavodarosa/KidGo/internal/viewport"
	"github.com/gustavodarosa/KidGo/pkg/cache"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/config"
	"github.com/gustavodarosa/KidGo/pkg/errors"
	"github.com/gustavodarosa/KidGo/pkg/eventbus"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/health"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/middleware"
	"github.com/gustavodarosa/KidGo/pkg/ratelimit"
	redisClient "github.com/gustavodarosa/KidGo/pkg/redis"
	"github.com/gustavodarosa/KidGo/pkg/resilience"
	"github.com/gustavodarosa/KidGo/pkg/tracing"
	ws "github.com/gustavodarosa/KidGo/pkg/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const serviceName = "scheduler-service"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting scheduler service",
		zap.String("service", serviceName),
		zap.String("version", cfg.Server.Version),
	)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Sentry for error tracking
	sentryConfig := &errors.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.Server.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
		ServerName:       serviceName,
	}
	if sentryConfig.Release == "" {
		sentryConfig.Release = cfg.Server.Version
	}
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	tp, err := tracing.InitTracer(tracing.ConfigFrom(cfg), logger.Get())
	if err != nil {
		logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shutdown tracer", zap.Error(err))
			}
		}()
		logger.Info("OpenTelemetry tracing initialized successfully")
	}

	checkerCfg := health.DefaultDeepCheckerConfig()
	checkerCfg.Version = cfg.Server.Version
	checker := health.NewDeepChecker(checkerCfg)
	liveness := make(map[string]func() error)

	// Redis backs the route cache and the API rate limiter. Without it both
	// degrade to no-ops.
	var (
		routeCache *cache.Manager
		limiter    *ratelimit.Limiter
	)
	if cfg.Redis.Enabled {
		rc, err := redisClient.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn("Failed to connect to Redis, continuing without route cache", zap.Error(err))
		} else {
			defer rc.Close()
			routeCache = cache.NewManager(rc, "kidgo")
			limiter = ratelimit.NewLimiter(rc.Client, cfg.RateLimit)
			probe := health.RedisProbe(rc.Client)
			checker.AddDependency("redis", false, probe)
			liveness["redis"] = probe.Checker(health.DefaultTimeout)
			logger.Info("Connected to Redis")
		}
	}

	var publisher *session.BusPublisher
	if cfg.NATS.Enabled {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.NATS.URL
		bus, err := eventbus.New(busCfg)
		if err != nil {
			logger.Warn("Failed to connect to NATS, ride requests will not be published", zap.Error(err))
			publisher = session.NewBusPublisher(nil, serviceName)
		} else {
			defer bus.Close()
			publisher = session.NewBusPublisher(bus, serviceName)
			checker.AddDependency("nats", true, health.PingProbe("nats", bus.Ping))
		}
	} else {
		publisher = session.NewBusPublisher(nil, serviceName)
	}

	placeService, err := buildPlaces(cfg)
	if err != nil {
		logger.Fatal("Failed to build place search", zap.Error(err))
	}
	routeService, err := buildRouting(cfg, routeCache)
	if err != nil {
		logger.Fatal("Failed to build routing", zap.Error(err))
	}

	if cfg.Resilience.CircuitBreaker.Enabled {
		cb := cfg.Resilience.CircuitBreaker
		for _, p := range placeService.Providers() {
			breaker := resilience.NewCircuitBreaker(places.BreakerSettings(p, cb.SettingsFor("places-"+p)), nil)
			placeService.SetCircuitBreaker(p, breaker)
		}
		for _, b := range cfg.Maps.RoutingProviders {
			breaker := resilience.NewCircuitBreaker(routing.BreakerSettings(b, cb.SettingsFor("routing-"+b)), nil)
			routeService.SetCircuitBreaker(b, breaker)
		}
		for name, b := range placeService.Breakers() {
			checker.AddCircuitBreaker("places-"+name, b)
		}
		for name, b := range routeService.Breakers() {
			checker.AddCircuitBreaker("routing-"+name, b)
		}
		logger.Info("Circuit breakers enabled for map providers")
	}
	if slices.Contains(cfg.Maps.RoutingProviders, routing.ProviderOSRM) {
		checker.AddDependency("osrm", false, health.HTTPProbe(cfg.Maps.OSRMURL))
	}

	pricer := quote.NewRatePricer(cfg.Pricing)
	deps := session.Dependencies{
		Places:   placeService,
		Router:   routeService,
		Pricer:   pricer,
		Currency: pricer.Currency(),
		Search: places.EngineConfig{
			Debounce:       cfg.Pipeline.Debounce(),
			MinQueryLength: cfg.Pipeline.MinQueryLength,
			RadiusMeters:   cfg.Maps.SearchRadiusMeters,
			Language:       cfg.Maps.Language,
			Region:         cfg.Maps.Region,
		},
		LocationTimeout: cfg.Pipeline.LocationTimeout(),
		Fitter:          viewport.NewFitter(cfg.Pipeline.ViewportPadding, cfg.Pipeline.ViewportMinDelta),
		SettleDelay:     cfg.Pipeline.SettleDelay(),
	}
	if cfg.Pipeline.StaticLocation != "" {
		c, err := geo.ParseCoordinate(cfg.Pipeline.StaticLocation)
		if err != nil {
			logger.Fatal("Invalid STATIC_LOCATION", zap.Error(err))
		}
		deps.StaticLocation = &c
		logger.Info("Using static device location", zap.String("coordinate", c.String()))
	}

	hub := ws.NewHub()
	manager := session.NewManager(rootCtx, deps, session.NewHubEmitter(hub), publisher, cfg.Pipeline.SessionIdleTTL())
	go manager.Run(rootCtx)

	handler := session.NewHandler(manager, hub, ws.NewUpgrader(cfg.Server.CORSOrigins), cfg.Server.RequestTimeout())

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))
	if cfg.Tracing.Enabled {
		router.Use(middleware.Tracing(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", common.HealthCheckWithDeps(serviceName, cfg.Server.Version, liveness))
	router.GET("/health/deep", checker.GinHandler())
	router.GET("/health/ready", checker.ReadyHandler(func() gin.H {
		return gin.H{"sessions": manager.Count(), "clients": hub.GetClientCount()}
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, middleware.RateLimit(limiter, "id"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	manager.Shutdown(ctx)
	hub.CloseAll()
	cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

func buildPlaces(cfg *config.Config) (*places.Service, error) {
	var backends []places.Backend
	for _, name := range cfg.Maps.PlacesProviders {
		switch name {
		case places.ProviderGoogle:
			backends = append(backends, places.NewGoogleBackend(places.GoogleConfig{
				APIKey:  cfg.Maps.GoogleAPIKey,
				Mode:    cfg.Maps.GoogleSearchMode,
				Region:  cfg.Maps.Region,
				Timeout: cfg.Maps.HTTPTimeout(),
			}))
		case places.ProviderHERE:
			backends = append(backends, places.NewHEREBackend(places.HEREConfig{
				APIKey:      cfg.Maps.HEREAPIKey,
				DiscoverURL: cfg.Maps.HEREDiscoverURL,
				LookupURL:   cfg.Maps.HERELookupURL,
				Region:      cfg.Maps.Region,
				Timeout:     cfg.Maps.HTTPTimeout(),
			}))
		default:
			return nil, fmt.Errorf("unknown places provider %q", name)
		}
	}
	return places.NewService(backends, cfg.Maps.RequestsPerSecond, cfg.Maps.Burst)
}

func buildRouting(cfg *config.Config, routeCache *cache.Manager) (*routing.Service, error) {
	var backends []routing.Backend
	for _, name := range cfg.Maps.RoutingProviders {
		switch name {
		case routing.ProviderOSRM:
			backends = append(backends, routing.NewOSRMBackend(cfg.Maps.OSRMURL, cfg.Maps.HTTPTimeout()))
		case routing.ProviderGoogle:
			backends = append(backends, routing.NewGoogleBackend(routing.GoogleConfig{
				APIKey:   cfg.Maps.GoogleAPIKey,
				Language: cfg.Maps.Language,
				Region:   cfg.Maps.Region,
				Timeout:  cfg.Maps.HTTPTimeout(),
			}))
		default:
			return nil, fmt.Errorf("unknown routing provider %q", name)
		}
	}
	return routing.NewService(backends, routeCache, cfg.Maps.RouteCacheTTL(), cfg.Maps.RequestsPerSecond, cfg.Maps.Burst)
}
