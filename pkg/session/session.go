// Package session bounds how long cached edit artifacts are retained.
//
// At most one editing session is active. Starting a session for a different image
// drops the previous image's cache entries, and a periodic check expires sessions
// older than MaxAge.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// Cache is the part of the cache layer a session controls
type Cache interface {
	ClearAll()
	ClearForImage(imageID string) int
	PruneExcept(imageID string) int
}

// EndMode selects what ending a session does to the caches
type EndMode int

const (
	// EndClearAll drops every cached entry
	EndClearAll EndMode = iota
	// EndKeepCurrent drops everything except the session image's entries
	EndKeepCurrent
)

// Config holds session timing
type Config struct {
	CheckInterval time.Duration `json:"check_interval" mapstructure:"check_interval"`
	MaxAge        time.Duration `json:"max_age" mapstructure:"max_age"`
}

// DefaultConfig returns a 30 second check interval and a 3 minute cap
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		MaxAge:        3 * time.Minute,
	}
}

// Session is one active edit
type Session struct {
	ID      string    `json:"id"`
	Image   string    `json:"image"`
	Started time.Time `json:"started"`
}

// Manager runs the session state machine
type Manager struct {
	config Config
	cache  Cache
	clock  clockwork.Clock
	logger logrus.FieldLogger

	mu     sync.Mutex
	active *Session
}

// NewManager creates a session manager. A nil clock uses the real clock.
func NewManager(config Config, cache Cache, clock clockwork.Clock, logger logrus.FieldLogger) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	defaults := DefaultConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	return &Manager{
		config: config,
		cache:  cache,
		clock:  clock,
		logger: logger,
	}
}

// Start opens a session for an image. An active session for another image is
// replaced and its cache entries dropped; an active session for the same image is
// kept and its clock restarted.
func (m *Manager) Start(imageID string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.active != nil {
		if m.active.Image == imageID {
			m.active.Started = now
			return *m.active
		}
		removed := m.cache.ClearForImage(m.active.Image)
		m.logger.WithFields(logrus.Fields{
			"session": m.active.ID,
			"image":   m.active.Image,
			"removed": removed,
		}).Debug("replaced session")
	}

	m.active = &Session{ID: uuid.NewString(), Image: imageID, Started: now}
	m.logger.WithFields(logrus.Fields{"session": m.active.ID, "image": imageID}).Debug("started session")
	return *m.active
}

// End closes the active session, if any
func (m *Manager) End(mode EndMode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case mode == EndKeepCurrent && m.active != nil:
		m.cache.PruneExcept(m.active.Image)
	default:
		m.cache.ClearAll()
	}
	if m.active != nil {
		m.logger.WithFields(logrus.Fields{"session": m.active.ID, "mode": mode}).Debug("ended session")
	}
	m.active = nil
}

// Active returns the active session
func (m *Manager) Active() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Session{}, false
	}
	return *m.active, true
}

// Check expires an old session. Without a live session every cache is cleared;
// otherwise entries of other images are pruned. It reports whether a session is
// still active.
func (m *Manager) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.clock.Since(m.active.Started) > m.config.MaxAge {
		m.logger.WithFields(logrus.Fields{"session": m.active.ID, "image": m.active.Image}).Debug("session expired")
		m.active = nil
	}
	if m.active == nil {
		m.cache.ClearAll()
		return false
	}
	m.cache.PruneExcept(m.active.Image)
	return true
}

// Run checks sessions every CheckInterval until ctx is cancelled
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Check()
		}
	}
}
