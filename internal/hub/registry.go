package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/defi-assistant/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotAuthenticated is returned for identity-scoped operations on anonymous sessions.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrInvalidAddress is returned when an identity is not a wallet address.
	ErrInvalidAddress = errors.New("invalid wallet address")
)

// RegistryConfig tunes per-session delivery.
type RegistryConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

// Registry owns every live session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	router   *Router
	cfg      RegistryConfig
	logger   *slog.Logger
}

// NewRegistry creates a registry whose sessions are removed from router rooms on deregistration.
func NewRegistry(router *Router, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Registry{
		sessions: make(map[string]*Session),
		router:   router,
		cfg:      cfg,
		logger:   logger,
	}
}

// Register allocates a session with a fresh id for conn.
func (r *Registry) Register(conn Conn) *Session {
	s := newSession(uuid.NewString(), conn, r.cfg.SendBuffer, r.cfg.WriteTimeout, r.logger)

	r.mu.Lock()
	r.sessions[s.id] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("Session registered", "session_id", s.id, "sessions", count)
	return s
}

// Authenticate attaches a wallet identity to the session and returns the
// normalized address.
func (r *Registry) Authenticate(s *Session, address string) (string, error) {
	normalized := domain.NormalizeAddress(address)
	if normalized == "" {
		return "", ErrInvalidAddress
	}
	s.setAddress(normalized)
	r.logger.Info("Session authenticated", "session_id", s.id, "address", normalized)
	return normalized, nil
}

// Deregister removes the session from the table and from every room, then
// stops its writer. Safe to call more than once.
func (r *Registry) Deregister(s *Session) {
	r.mu.Lock()
	current, ok := r.sessions[s.id]
	if ok && current == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	rooms := s.markClosed()
	if r.router != nil {
		for _, room := range rooms {
			r.router.detach(s, room)
		}
	}
	s.shutdown()

	if ok {
		r.logger.Info("Session unregistered", "session_id", s.id, "rooms_left", len(rooms))
	}
}

// Get returns a live session by id.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close deregisters every session.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		if err := s.conn.Close("server shutting down"); err != nil {
			r.logger.Debug("Failed to close session connection", "session_id", s.id, "error", err)
		}
		r.Deregister(s)
	}
}
