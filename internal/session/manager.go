package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mesbot/mesbot/internal/domain"
)

// Manager is the keyed registry of live sessions.
type Manager struct {
	users  Users
	cache  Cache
	portal Portal
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewManager creates a Manager.
func NewManager(users Users, cache Cache, p Portal, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		users:    users,
		cache:    cache,
		portal:   p,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Resolve returns the session for userID, loading the user from storage or
// registering a new one on first contact.
func (m *Manager) Resolve(ctx context.Context, userID int64, username string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		m.refreshUsername(ctx, s, username)
		return s, nil
	}

	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if user == nil {
		now := m.now()
		user = &domain.User{
			ID:          userID,
			Username:    username,
			Preferences: domain.DefaultPreferences(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := m.users.UpsertUser(ctx, user); err != nil {
			return nil, fmt.Errorf("register user %d: %w", userID, err)
		}
		m.logger.Info("New user registered", "user_id", userID, "username", username)
	} else if username != "" && user.Username != username {
		user.Username = username
		if err := m.users.UpsertUser(ctx, user); err != nil {
			m.logger.Warn("Failed to update username", "user_id", userID, "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[userID]; ok {
		return existing, nil
	}
	s = &Session{mgr: m, user: *user}
	m.sessions[userID] = s
	return s, nil
}

func (m *Manager) refreshUsername(ctx context.Context, s *Session, username string) {
	if username == "" {
		return
	}
	s.mu.Lock()
	if s.user.Username == username {
		s.mu.Unlock()
		return
	}
	s.user.Username = username
	snapshot := s.user
	s.mu.Unlock()

	if err := m.users.UpsertUser(ctx, &snapshot); err != nil {
		m.logger.Warn("Failed to update username", "user_id", snapshot.ID, "error", err)
	}
}

// Get returns a live session without touching storage.
func (m *Manager) Get(userID int64) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Users lists every stored user.
func (m *Manager) Users(ctx context.Context) ([]*domain.User, error) {
	users, err := m.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (m *Manager) drop(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
