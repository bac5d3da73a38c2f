package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"cleansight/internal/service/identity"
	"cleansight/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// OpenFunc attaches an identity client to a browser session id
type OpenFunc func(ctx context.Context, sid string) (IdentityClient, error)

// FromIdentityService adapts the identity service to an OpenFunc
func FromIdentityService(svc *identity.Service) OpenFunc {
	return func(ctx context.Context, sid string) (IdentityClient, error) {
		c, err := svc.Open(ctx, sid)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ManagerConfig tunes idle eviction
type ManagerConfig struct {
	IdleTTL         time.Duration
	JanitorInterval time.Duration
	// MaxSessions caps live sessions. At the cap the least recently active
	// idle session is evicted to make room.
	MaxSessions int
}

// DefaultMaxSessions is used when ManagerConfig.MaxSessions is not set
const DefaultMaxSessions = 10000

// ErrTooManySessions is returned when the cap is reached and every session is mid-operation
var ErrTooManySessions = errors.New("too many active sessions")

// Manager keeps one Session per browser session id and evicts idle ones
type Manager struct {
	open     OpenFunc
	profiles ProfileSource
	config   ManagerConfig
	logger   *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	group    singleflight.Group

	runMu   sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	now func() time.Time
}

func NewManager(open OpenFunc, profiles ProfileSource, cfg ManagerConfig, log *logger.Logger) *Manager {
	if cfg.JanitorInterval <= 0 {
		cfg.JanitorInterval = time.Minute
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &Manager{
		open:     open,
		profiles: profiles,
		config:   cfg,
		logger:   log.Named("session_manager"),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Acquire returns the live session for sid, creating it on first use.
// A session stuck in StateFailed is replaced so the profile load is retried.
func (m *Manager) Acquire(ctx context.Context, sid string) (*Session, error) {
	if s := m.live(sid); s != nil {
		s.touch()
		return s, nil
	}

	v, err, _ := m.group.Do(sid, func() (interface{}, error) {
		if s := m.live(sid); s != nil {
			return s, nil
		}
		client, err := m.open(ctx, sid)
		if err != nil {
			return nil, err
		}
		s := New(sid, client, m.profiles, m.logger)

		m.mu.Lock()
		victim, ok := m.makeRoomLocked()
		if !ok {
			m.mu.Unlock()
			s.Close()
			m.logger.WithField("max_sessions", m.config.MaxSessions).Warn("Session cap reached")
			return nil, ErrTooManySessions
		}
		m.sessions[sid] = s
		m.mu.Unlock()

		if victim != nil {
			victim.Close()
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	s := v.(*Session)
	s.touch()
	return s, nil
}

// live returns a usable session for sid, discarding a failed one
func (m *Manager) live(sid string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if s.Snapshot().State != StateFailed || s.busy() {
		m.mu.Unlock()
		return s
	}
	delete(m.sessions, sid)
	m.mu.Unlock()

	m.logger.WithField("sid_prefix", sidPrefix(sid)).Info("Replacing failed session")
	s.Close()
	return nil
}

// makeRoomLocked frees a slot when the map is at the cap by removing the least
// recently active session that is not mid-operation. The caller closes the
// returned session after releasing mu.
func (m *Manager) makeRoomLocked() (*Session, bool) {
	if len(m.sessions) < m.config.MaxSessions {
		return nil, true
	}

	var (
		victimSID string
		victim    *Session
		oldest    time.Time
	)
	for sid, s := range m.sessions {
		if s.busy() {
			continue
		}
		if seen := s.idleSince(); victim == nil || seen.Before(oldest) {
			victimSID, victim, oldest = sid, s, seen
		}
	}
	if victim == nil {
		return nil, false
	}
	delete(m.sessions, victimSID)
	m.logger.WithField("sid_prefix", sidPrefix(victimSID)).Debug("Evicted least recently active session")
	return victim, true
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Start launches the idle-session janitor
func (m *Manager) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		m.logger.Warn("Session janitor is already running")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.janitor(m.stopCh, m.doneCh)
	m.logger.WithFields(map[string]interface{}{
		"idle_ttl": m.config.IdleTTL.String(),
		"interval": m.config.JanitorInterval.String(),
	}).Info("Session janitor started")
}

// Stop halts the janitor and waits for it to exit
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.running = false
	m.logger.Info("Session janitor stopped")
}

// Close stops the janitor and closes every session
func (m *Manager) Close() {
	m.Stop()

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) janitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep closes sessions idle for longer than IdleTTL
func (m *Manager) Sweep() int {
	if m.config.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.config.IdleTTL)

	m.mu.Lock()
	var idle []*Session
	for sid, s := range m.sessions {
		if s.idleSince().Before(cutoff) && !s.busy() {
			idle = append(idle, s)
			delete(m.sessions, sid)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.WithField("evicted", len(idle)).Debug("Evicted idle sessions")
	}
	return len(idle)
}

func sidPrefix(sid string) string {
	if len(sid) <= 6 {
		return sid
	}
	return sid[:6]
}
