// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Manager tracks active browser sessions for a runtime.
type Manager struct {
	runtime  Runtime
	metrics  *Metrics
	logger   *zap.Logger
	sessions map[string]*managedSession
	mu       sync.Mutex
}

// NewManager creates a Manager backed by the provided runtime.
func NewManager(runtime Runtime, metrics *Metrics, logger *zap.Logger) *Manager {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		runtime:  runtime,
		metrics:  metrics,
		logger:   logger.Named("session"),
		sessions: make(map[string]*managedSession),
	}
}

// Metrics returns the manager's counters.
func (m *Manager) Metrics() *Metrics {
	return m.metrics
}

// CreateSession allocates a new browser session. The returned session removes
// itself from the manager when closed, and closing it more than once is a no-op.
func (m *Manager) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if m == nil || m.runtime == nil {
		return nil, ErrUnavailable
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	m.mu.Lock()
	if _, exists := m.sessions[cfg.SessionID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("session already exists: %s", cfg.SessionID)
	}
	// Reserve the ID so concurrent callers cannot race on it.
	m.sessions[cfg.SessionID] = nil
	m.mu.Unlock()

	sess, err := m.runtime.NewSession(ctx, cfg)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, cfg.SessionID)
		m.mu.Unlock()
		return nil, err
	}

	ms := &managedSession{Session: sess, id: cfg.SessionID, manager: m}
	m.mu.Lock()
	m.sessions[cfg.SessionID] = ms
	m.mu.Unlock()
	m.metrics.RecordSessionCreated()
	m.logger.Debug("session opened", zap.String("session_id", cfg.SessionID))
	return ms, nil
}

// Active returns the number of open sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

// WithSession opens an isolated session, runs fn with it, and closes the session on
// every exit path, including panics inside fn. The session is closed exactly once.
func (m *Manager) WithSession(ctx context.Context, cfg SessionConfig, fn func(context.Context, Session) error) (err error) {
	sess, err := m.CreateSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			m.logger.Warn("session close failed", zap.String("session_id", cfg.SessionID), zap.Error(cerr))
			if err == nil {
				err = fmt.Errorf("close session %s: %w", cfg.SessionID, cerr)
			}
		}
	}()
	return fn(ctx, sess)
}

// Close closes all sessions and releases the runtime.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	sessions := make([]*managedSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	m.mu.Unlock()

	var lastErr error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			lastErr = err
		}
	}
	if m.runtime != nil {
		if err := m.runtime.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

type managedSession struct {
	Session
	id       string
	manager  *Manager
	once     sync.Once
	closeErr error
}

func (s *managedSession) Close() error {
	s.once.Do(func() {
		s.closeErr = s.Session.Close()
		m := s.manager
		m.mu.Lock()
		if cur, ok := m.sessions[s.id]; ok && cur == s {
			delete(m.sessions, s.id)
		}
		m.mu.Unlock()
		m.metrics.RecordSessionClosed()
		m.logger.Debug("session closed", zap.String("session_id", s.id))
	})
	return s.closeErr
}
