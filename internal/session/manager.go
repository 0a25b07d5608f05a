package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gustavodarosa/KidGo/pkg/async"
	"github.com/gustavodarosa/KidGo/pkg/clock"
	apperrors "github.com/gustavodarosa/KidGo/pkg/errors"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// DefaultIdleTTL is how long a session may go without input before it expires.
const DefaultIdleTTL = 30 * time.Minute

// sessionCloser is implemented by emitters that hold per-session subscribers.
type sessionCloser interface {
	CloseSession(sessionID string)
}

// Manager owns the open sessions.
type Manager struct {
	ctx       context.Context
	deps      Dependencies
	emitter   Emitter
	publisher Publisher
	clock     clock.Clock
	idleTTL   time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. Session loops inherit ctx.
func NewManager(ctx context.Context, deps Dependencies, emitter Emitter, publisher Publisher, idleTTL time.Duration) *Manager {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if publisher == nil {
		publisher = NewBusPublisher(nil, "scheduler")
	}
	return &Manager{
		ctx:       ctx,
		deps:      deps,
		emitter:   emitter,
		publisher: publisher,
		clock:     deps.Clock,
		idleTTL:   idleTTL,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a new session.
func (m *Manager) Create(ctx context.Context) *Session {
	s := newSession(m.ctx, uuid.NewString(), m.deps, m.emitter)

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	activeSessions.Inc()
	logger.InfoContext(logger.ContextWithSessionID(ctx, s.ID()), "session created")
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close ends a session without a ride.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, ok := m.take(id)
	if !ok {
		return ErrSessionNotFound
	}
	m.end(ctx, s, ReasonClosed)
	return nil
}

// Confirm confirms the session's quote for riders, publishes the ride and
// ends the session. The ride is published off the request path; a publish
// failure is reported but does not undo the confirmation.
func (m *Manager) Confirm(ctx context.Context, id string, riders Riders) (RideRequest, error) {
	s, err := m.Get(id)
	if err != nil {
		return RideRequest{}, err
	}

	ride, err := s.Confirm(ctx, riders)
	if err != nil {
		return RideRequest{}, err
	}

	async.Go(ctx, "publish-ride", func(ctx context.Context) {
		if err := m.publisher.RideRequested(ctx, ride); err != nil {
			logger.ErrorContext(ctx, "failed to publish ride request", zap.String("ride_id", ride.ID), zap.Error(err))
			apperrors.CaptureErrorWithContext(ctx, err, map[string]interface{}{
				"ride_id":    ride.ID,
				"session_id": id,
			})
		}
	})

	if s, ok := m.take(id); ok {
		m.end(ctx, s, ReasonConfirmed)
	}
	logger.InfoContext(ctx, "ride confirmed",
		zap.String("ride_id", ride.ID),
		zap.Float64("fare", ride.EstimatedFare),
		zap.Int("children", len(ride.Children)),
	)
	return ride, nil
}

// Sweep expires sessions idle for longer than the TTL and returns how many
// were closed.
func (m *Manager) Sweep(ctx context.Context) int {
	cutoff := m.clock.Now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.end(ctx, s, ReasonExpired)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				logger.InfoContext(ctx, "expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Shutdown closes every session.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.end(ctx, s, ReasonShutdown)
	}
}

func (m *Manager) take(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok
}

func (m *Manager) end(ctx context.Context, s *Session, reason string) {
	last := s.close()
	if closer, ok := m.emitter.(sessionCloser); ok {
		closer.CloseSession(s.ID())
	}
	activeSessions.Dec()
	sessionsEndedTotal.WithLabelValues(reason).Inc()

	ctx = logger.ContextWithSessionID(ctx, s.ID())
	logger.InfoContext(ctx, "session ended", zap.String("reason", reason), zap.String("last_state", string(last)))

	if reason == ReasonConfirmed {
		return
	}
	if err := m.publisher.SessionClosed(ctx, s.ID(), reason, last); err != nil {
		logger.WarnContext(ctx, "failed to publish session close", zap.Error(err))
	}
}
