package calibration

import (
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ErrSessionInProgress is returned when a sensor already has a live session.
var ErrSessionInProgress = errors.New("calibration session already in progress")

// WithLogger sets the logger for the manager and its sessions
func WithLogger(logger *slog.Logger) func(m *Manager) {
	return func(m *Manager) {
		m.logger = logger.With(slog.String("component", "calibration"))
	}
}

// WithConfig replaces the default session configuration
func WithConfig(cfg Config) func(m *Manager) {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// Manager creates and tracks calibration sessions, at most one live session
// per sensor.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	logger   *slog.Logger
	sessions map[string]*Session
}

// NewManager creates a Manager with default configuration and a discard logger.
func NewManager(options ...func(m *Manager)) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	m := Manager{
		cfg:      DefaultConfig(),
		logger:   logger,
		sessions: make(map[string]*Session),
	}

	for _, option := range options {
		option(&m)
	}

	return &m
}

// Start creates a new session for the sensor. A sensor with a pending or
// running session is rejected with ErrSessionInProgress; a finished session
// is replaced.
func (m *Manager) Start(sensorID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[sensorID]; ok {
		switch existing.Status() {
		case StatusPending, StatusInProgress:
			return nil, ErrSessionInProgress
		}
	}

	s := newSession(sensorID, m.cfg, m.logger)
	m.sessions[sensorID] = s

	m.logger.Info("calibration session started",
		slog.String("sensorID", sensorID),
		slog.String("sessionID", s.ID()),
		slog.Int("steps", len(s.steps)))
	return s, nil
}

// Session returns the sensor's most recent session, nil when none exists.
func (m *Manager) Session(sensorID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sensorID]
}

// CancelAll cancels every live session with the given reason.
func (m *Manager) CancelAll(reason string) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel(reason)
	}
}
