package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore backed by an in-memory map.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{tokens: make(map[string]string)}
}

// InMemorySessionStore implements SessionStore for tests and local development.
// Users must be registered before tokens can be saved for them.
type InMemorySessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// Register makes userID a known user with no active refresh token.
func (s *InMemorySessionStore) Register(userID string) {
	s.mu.Lock()
	if _, ok := s.tokens[userID]; !ok {
		s.tokens[userID] = ""
	}
	s.mu.Unlock()
}

// SaveRefreshToken replaces the active refresh token of the user.
func (s *InMemorySessionStore) SaveRefreshToken(_ context.Context, userID, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return ErrUserNotFound
	}
	s.tokens[userID] = refreshToken
	return nil
}

// FindRefreshToken returns the active refresh token, or "" when none is set.
func (s *InMemorySessionStore) FindRefreshToken(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	token, ok := s.tokens[userID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrUserNotFound
	}
	return token, nil
}

// DeleteRefreshToken clears the active refresh token of the user.
func (s *InMemorySessionStore) DeleteRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return ErrUserNotFound
	}
	s.tokens[userID] = ""
	return nil
}

// Has reports whether refreshToken is the user's active token. Useful for tests.
func (s *InMemorySessionStore) Has(userID, refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return refreshToken != "" && s.tokens[userID] == refreshToken
}
