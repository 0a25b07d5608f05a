package health

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/resilience"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DependencyStatus is the outcome of one probe
type DependencyStatus struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Critical  bool          `json:"critical"`
	Latency   time.Duration `json:"latency_ms"`
	Message   string        `json:"message,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// BreakerStatus reports whether a provider breaker admits requests
type BreakerStatus struct {
	Name   string `json:"name"`
	State  string `json:"state"`
	Allows bool   `json:"allows_requests"`
}

// DeepHealthStatus is the aggregated service health.
type DeepHealthStatus struct {
	Status       string                      `json:"status"`
	Version      string                      `json:"version,omitempty"`
	Uptime       time.Duration               `json:"uptime_seconds"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
	Breakers     map[string]BreakerStatus    `json:"circuit_breakers,omitempty"`
	CheckedAt    time.Time                   `json:"checked_at"`
}

type dependency struct {
	probe    Probe
	critical bool
}

// DeepCheckerConfig configures a DeepChecker
type DeepCheckerConfig struct {
	Version  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// DefaultDeepCheckerConfig returns the defaults used by the service.
func DefaultDeepCheckerConfig() DeepCheckerConfig {
	return DeepCheckerConfig{
		Version:  "unknown",
		Timeout:  DefaultTimeout,
		CacheTTL: 10 * time.Second,
	}
}

// DeepChecker probes every registered dependency concurrently and caches
// the aggregate for CacheTTL.
type DeepChecker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	cacheTTL  time.Duration

	mu           sync.RWMutex
	dependencies map[string]dependency
	breakers     map[string]*resilience.CircuitBreaker
	lastResult   *DeepHealthStatus
	lastChecked  time.Time
}

// NewDeepChecker creates a checker with nothing registered.
func NewDeepChecker(config DeepCheckerConfig) *DeepChecker {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &DeepChecker{
		version:      config.Version,
		startTime:    time.Now(),
		timeout:      config.Timeout,
		cacheTTL:     config.CacheTTL,
		dependencies: make(map[string]dependency),
		breakers:     make(map[string]*resilience.CircuitBreaker),
	}
}

// AddDependency registers a probe. A failing critical dependency makes the
// service unhealthy; any other failure only degrades it.
func (d *DeepChecker) AddDependency(name string, critical bool, probe Probe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dependencies[name] = dependency{probe: probe, critical: critical}
	d.lastResult = nil
}

// AddCircuitBreaker adds a provider breaker to report.
func (d *DeepChecker) AddCircuitBreaker(name string, breaker *resilience.CircuitBreaker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.breakers[name] = breaker
	d.lastResult = nil
}

// Check returns the aggregated health, probing again once the cached result
// is older than the TTL.
func (d *DeepChecker) Check(ctx context.Context) *DeepHealthStatus {
	d.mu.RLock()
	if d.lastResult != nil && time.Since(d.lastChecked) < d.cacheTTL {
		result := d.lastResult
		d.mu.RUnlock()
		return result
	}
	deps := make(map[string]dependency, len(d.dependencies))
	for name, dep := range d.dependencies {
		deps[name] = dep
	}
	breakers := make(map[string]*resilience.CircuitBreaker, len(d.breakers))
	for name, b := range d.breakers {
		breakers[name] = b
	}
	d.mu.RUnlock()

	status := &DeepHealthStatus{
		Status:       StatusHealthy,
		Version:      d.version,
		Uptime:       time.Since(d.startTime),
		Dependencies: make(map[string]DependencyStatus, len(deps)),
		Breakers:     make(map[string]BreakerStatus, len(breakers)),
		CheckedAt:    time.Now(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, dep := range deps {
		wg.Add(1)
		go func(name string, dep dependency) {
			defer wg.Done()
			result := d.run(ctx, name, dep)

			mu.Lock()
			defer mu.Unlock()
			status.Dependencies[name] = result
			status.Status = worse(status.Status, result.Status, dep.critical)
		}(name, dep)
	}
	wg.Wait()

	for name, b := range breakers {
		allows := b.Allow()
		state := "closed"
		if !allows {
			state = "open"
			status.Status = worse(status.Status, StatusUnhealthy, false)
		}
		status.Breakers[name] = BreakerStatus{Name: name, State: state, Allows: allows}
	}

	d.mu.Lock()
	d.lastResult = status
	d.lastChecked = time.Now()
	d.mu.Unlock()

	return status
}

func (d *DeepChecker) run(ctx context.Context, name string, dep dependency) DependencyStatus {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	msg, err := dep.probe(ctx)
	result := DependencyStatus{
		Name:      name,
		Status:    StatusHealthy,
		Critical:  dep.critical,
		Latency:   time.Since(start),
		Message:   msg,
		CheckedAt: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
	}
	return result
}

// worse folds a dependency result into the aggregate status.
func worse(current, dep string, critical bool) string {
	if dep == StatusHealthy {
		return current
	}
	if critical {
		return StatusUnhealthy
	}
	if current == StatusUnhealthy {
		return current
	}
	return StatusDegraded
}

// Unhealthy lists the failing dependencies, sorted.
func (s *DeepHealthStatus) Unhealthy() []string {
	var out []string
	for name, dep := range s.Dependencies {
		if dep.Status != StatusHealthy {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// GinHandler serves the aggregate. Degraded still answers 200.
func (d *DeepChecker) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())

		code := http.StatusOK
		if status.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

// ReadyHandler answers 503 naming the failing dependencies while a critical
// one is down, otherwise 200 with the fields details returns.
func (d *DeepChecker) ReadyHandler(details func() gin.H) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := d.Check(c.Request.Context())
		if status.Status == StatusUnhealthy {
			msg := "not ready: " + strings.Join(status.Unhealthy(), ", ")
			common.AppErrorResponse(c, common.NewUnavailableError(msg, nil).WithCode("not_ready"))
			return
		}

		body := gin.H{"status": "ready"}
		if details != nil {
			for k, v := range details() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	}
}

// IsReady reports whether every critical dependency is healthy.
func (d *DeepChecker) IsReady(ctx context.Context) bool {
	return d.Check(ctx).Status != StatusUnhealthy
}
