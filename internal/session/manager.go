// ABOUTME: Session records and the manager that owns their full lifecycle.
// ABOUTME: Includes the idle reaper that evicts sessions and closes their connections.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultReapInterval is how often the reaper scans for idle sessions.
	DefaultReapInterval = 5 * time.Minute
	// DefaultIdleThreshold is how long a session may sit untouched before
	// the reaper evicts it.
	DefaultIdleThreshold = 30 * time.Minute
)

// ClientInfo is the identity a client presents during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Session is one client conversation. LastActivityAt only moves forward;
// Touch ignores clock regressions. Mutable fields are owned by the Manager
// and must only change through its methods, which hold the manager lock.
type Session struct {
	ID             string
	ClientInfo     ClientInfo
	Capabilities   map[string]any
	Initialized    bool
	PrincipalID    string
	CreatedAt      time.Time
	LastActivityAt time.Time

	// OnEvict runs exactly once when the reaper or Delete removes the
	// session. The stream transport uses it to close the bound connection.
	OnEvict func()
}

// Manager owns all live sessions. All methods are safe for concurrent use.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	reapInterval  time.Duration
	idleThreshold time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// Config tunes the manager. Zero values fall back to the defaults.
type Config struct {
	ReapInterval  time.Duration
	IdleThreshold time.Duration
}

// NewManager creates a session manager. Run must be started separately for
// idle reaping to happen.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = DefaultIdleThreshold
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		reapInterval:  cfg.ReapInterval,
		idleThreshold: cfg.IdleThreshold,
		logger:        logger.With("component", "session-manager"),
		now:           time.Now,
	}
}

// Create mints a new session. If id is empty a UUID is generated.
func (m *Manager) Create(id string) *Session {
	if id == "" {
		id = uuid.New().String()
	}
	now := m.now()
	s := &Session{
		ID:             id,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	m.sessions[id] = s
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", id, "total_sessions", total)
	return s
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Initialize marks the session initialized and records what the client
// presented, creating the session first when the id is unknown (or empty, in
// which case one is minted). Re-initializing overwrites the previous state
// wholesale, except that a nil onEvict preserves any hook already installed.
// Returns the session id.
func (m *Manager) Initialize(id string, info ClientInfo, caps map[string]any, principalID string, onEvict func()) string {
	if id == "" {
		id = uuid.New().String()
	}
	now := m.now()

	m.mu.Lock()
	s, existed := m.sessions[id]
	if !existed {
		s = &Session{ID: id, CreatedAt: now, LastActivityAt: now}
		m.sessions[id] = s
	}
	s.ClientInfo = info
	s.Capabilities = caps
	s.Initialized = true
	s.PrincipalID = principalID
	if onEvict != nil {
		s.OnEvict = onEvict
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !existed {
		m.logger.Info("session created", "session_id", id, "total_sessions", total)
	}
	return id
}

// IsInitialized reports whether the session exists and has completed
// initialize, and returns the principal bound to it at that time.
func (m *Manager) IsInitialized(id string) (principalID string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, found := m.sessions[id]
	if !found || !s.Initialized {
		return "", false
	}
	return s.PrincipalID, true
}

// SetOnEvict installs (or clears, with nil) the eviction hook for a live
// session. Unknown ids are a no-op.
func (m *Manager) SetOnEvict(id string, hook func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.OnEvict = hook
	}
}

// Touch refreshes the session's activity timestamp. The timestamp never moves
// backwards even if the wall clock does.
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if now := m.now(); now.After(s.LastActivityAt) {
		s.LastActivityAt = now
	}
}

// Delete removes a session and fires its eviction hook. Deleting an unknown
// id is a no-op, which makes shutdown idempotent.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	var hook func()
	if ok {
		delete(m.sessions, id)
		hook = s.OnEvict
	}
	total := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return
	}

	m.logger.Info("session deleted", "session_id", id, "total_sessions", total)
	if hook != nil {
		hook()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Run drives the idle reaper until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	m.logger.Info("session reaper started",
		"interval", m.reapInterval.String(),
		"idle_threshold", m.idleThreshold.String(),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("session reaper stopped")
			return
		case <-ticker.C:
			m.ReapOnce()
		}
	}
}

// ReapOnce evicts every session idle longer than the threshold and returns
// how many were removed. Eviction hooks fire outside the lock so a slow hook
// cannot stall request handling.
func (m *Manager) ReapOnce() int {
	cutoff := m.now().Add(-m.idleThreshold)

	type evicted struct {
		id   string
		idle time.Duration
		hook func()
	}

	m.mu.Lock()
	var reaped []evicted
	for id, s := range m.sessions {
		if s.LastActivityAt.Before(cutoff) {
			delete(m.sessions, id)
			reaped = append(reaped, evicted{id: id, idle: m.now().Sub(s.LastActivityAt), hook: s.OnEvict})
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, e := range reaped {
		m.logger.Info("session reaped",
			"session_id", e.id,
			"idle", e.idle.String(),
			"total_sessions", remaining,
		)
		if e.hook != nil {
			e.hook()
		}
	}
	return len(reaped)
}
