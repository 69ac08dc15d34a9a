package asr

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/parakeet-wyoming/internal/audio"
	"github.com/eleven-am/parakeet-wyoming/internal/history"
	"github.com/eleven-am/parakeet-wyoming/internal/info"
	"github.com/eleven-am/parakeet-wyoming/internal/transcription"
)

type Manager struct {
	gate            *transcription.Gate
	info            *info.Descriptor
	stager          audio.Stager
	recorder        history.Recorder
	observer        Observer
	defaultLanguage string
	maxAudioBytes   int

	sessions map[string]*Session
	mu       sync.RWMutex
	log      *slog.Logger
}

type ManagerConfig struct {
	Gate            *transcription.Gate
	Info            *info.Descriptor
	Stager          audio.Stager
	Recorder        history.Recorder
	Observer        Observer
	DefaultLanguage string
	MaxAudioBytes   int
	Log             *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	return &Manager{
		gate:            cfg.Gate,
		info:            cfg.Info,
		stager:          cfg.Stager,
		recorder:        cfg.Recorder,
		observer:        cfg.Observer,
		defaultLanguage: cfg.DefaultLanguage,
		maxAudioBytes:   cfg.MaxAudioBytes,
		sessions:        make(map[string]*Session),
		log:             cfg.Log.With("component", "asr_manager"),
	}
}

func (m *Manager) NewSession(remote, transport string) *Session {
	s := NewSession(SessionConfig{
		Remote:          remote,
		Transport:       transport,
		DefaultLanguage: m.defaultLanguage,
		MaxAudioBytes:   m.maxAudioBytes,
		Stager:          m.stager,
		Gate:            m.gate,
		Info:            m.info,
		Recorder:        m.recorder,
		Observer:        m.observer,
		Log:             m.log,
	})

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.observer.SessionOpened(transport)
	m.log.Info("session opened", "session_id", s.ID(), "remote", remote, "transport", transport)
	return s
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if s != nil {
		s.Close()
		m.observer.SessionClosed(s.Transport())
		m.log.Info("session closed", "session_id", id)
	}
}

type SessionInfo struct {
	SessionID     string    `json:"session_id"`
	Remote        string    `json:"remote"`
	Transport     string    `json:"transport"`
	State         string    `json:"state"`
	Language      string    `json:"language"`
	BufferedBytes int       `json:"buffered_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) List() []SessionInfo {
	m.mu.RLock()
	sessions := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, SessionInfo{
			SessionID:     s.ID(),
			Remote:        s.Remote(),
			Transport:     s.Transport(),
			State:         s.State().String(),
			Language:      s.Language(),
			BufferedBytes: s.BufferedBytes(),
			CreatedAt:     s.CreatedAt(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
		m.observer.SessionClosed(s.Transport())
	}
	return nil
}
