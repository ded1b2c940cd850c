package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dalfonso89/currency-trends-dashboard/internal/logger"
	"github.com/dalfonso89/currency-trends-dashboard/internal/metrics"
)

const minCleanupInterval = time.Second

// Manager owns the live sessions and expires idle ones
type Manager struct {
	dependencies Dependencies
	ttl          time.Duration
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	sessions      map[string]*Session
	sessionsMutex sync.RWMutex

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewManager creates a manager and starts its cleanup goroutine. metrics may be nil.
func NewManager(dependencies Dependencies, ttl time.Duration, log *logger.Logger, m *metrics.Metrics) *Manager {
	interval := ttl / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}

	manager := &Manager{
		dependencies:  dependencies,
		ttl:           ttl,
		logger:        log,
		metrics:       m,
		now:           time.Now,
		sessions:      make(map[string]*Session),
		cleanupTicker: time.NewTicker(interval),
		stopCleanup:   make(chan struct{}),
	}

	go manager.cleanup()

	return manager
}

// SetClock replaces the manager's clock
func (manager *Manager) SetClock(now func() time.Time) {
	manager.sessionsMutex.Lock()
	defer manager.sessionsMutex.Unlock()
	manager.now = now
}

// Create starts a new session with default inputs
func (manager *Manager) Create() *Session {
	manager.sessionsMutex.Lock()
	defer manager.sessionsMutex.Unlock()

	id := uuid.NewString()
	session := New(id, manager.dependencies, manager.now())
	manager.sessions[id] = session
	manager.metrics.SetActiveSessions(len(manager.sessions))

	manager.logger.WithField("session", id).Info("Session created")
	return session
}

// Get looks a session up and marks it active
func (manager *Manager) Get(id string) (*Session, bool) {
	manager.sessionsMutex.RLock()
	session, ok := manager.sessions[id]
	now := manager.now()
	manager.sessionsMutex.RUnlock()

	if ok {
		session.Touch(now)
	}
	return session, ok
}

// Delete ends a session
func (manager *Manager) Delete(id string) bool {
	manager.sessionsMutex.Lock()
	defer manager.sessionsMutex.Unlock()

	if _, ok := manager.sessions[id]; !ok {
		return false
	}
	delete(manager.sessions, id)
	manager.metrics.SetActiveSessions(len(manager.sessions))
	manager.logger.WithField("session", id).Info("Session deleted")
	return true
}

// Len returns the number of live sessions
func (manager *Manager) Len() int {
	manager.sessionsMutex.RLock()
	defer manager.sessionsMutex.RUnlock()
	return len(manager.sessions)
}

// Reap removes sessions idle for longer than the TTL and returns how many went
func (manager *Manager) Reap() int {
	manager.sessionsMutex.Lock()
	defer manager.sessionsMutex.Unlock()

	currentTime := manager.now()
	reaped := 0
	for id, session := range manager.sessions {
		if currentTime.Sub(session.LastSeen()) > manager.ttl {
			delete(manager.sessions, id)
			reaped++
		}
	}
	if reaped > 0 {
		manager.metrics.SetActiveSessions(len(manager.sessions))
		manager.logger.WithField("reaped", reaped).Info("Expired idle sessions")
	}
	return reaped
}

// cleanup reaps idle sessions until Stop is called
func (manager *Manager) cleanup() {
	for {
		select {
		case <-manager.cleanupTicker.C:
			manager.Reap()
		case <-manager.stopCleanup:
			manager.cleanupTicker.Stop()
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (manager *Manager) Stop() {
	manager.stopOnce.Do(func() {
		close(manager.stopCleanup)
	})
}
