// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package auth provides session management, the signed session cookie,
// and the authentication and CSRF middleware.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when a session is not in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the session exists but has
	// passed its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Session tracks one authenticated browser. API-key requests are
// stateless and never create sessions.
type Session struct {
	// ID is the opaque session identifier carried in the signed cookie.
	ID string `json:"id"`

	// UserID is the authenticated user's distinguished name.
	UserID string `json:"user_id"`

	// APIKey is the user's Beachfront API key, cached so request
	// handling does not re-read the user row.
	APIKey string `json:"api_key"`

	// CSRFToken is the double-submit token expected on state-changing
	// requests.
	CSRFToken string `json:"csrf_token"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// NewSession creates a session for the user with the given lifetime.
func NewSession(userID, apiKey string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        generateToken(),
		UserID:    userID,
		APIKey:    apiKey,
		CSRFToken: generateToken(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// generateToken returns 32 random bytes hex-encoded.
func generateToken() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}

// SessionStore is the storage backend for sessions.
type SessionStore interface {
	// Create stores a new session.
	Create(ctx context.Context, session *Session) error

	// Get retrieves a session by ID. Returns ErrSessionNotFound or
	// ErrSessionExpired as appropriate.
	Get(ctx context.Context, id string) (*Session, error)

	// Delete removes a session. Deleting a missing session is not an
	// error.
	Delete(ctx context.Context, id string) error

	// Touch extends a session's expiry.
	Touch(ctx context.Context, id string, newExpiry time.Time) error

	// CleanupExpired removes expired sessions and returns the count.
	CleanupExpired(ctx context.Context) (int, error)

	// Close releases store resources.
	Close() error
}

// MemorySessionStore keeps sessions in process memory. Suitable for
// development; production uses the Badger-backed store so sessions
// survive restarts.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (s *MemorySessionStore) Create(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *session
	s.sessions[session.ID] = &stored
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.IsExpired() {
		return nil, ErrSessionExpired
	}
	copied := *session
	return &copied, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Touch(ctx context.Context, id string, newExpiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.ExpiresAt = newExpiry
	return nil
}

func (s *MemorySessionStore) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, session := range s.sessions {
		if session.IsExpired() {
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

func (s *MemorySessionStore) Close() error {
	return nil
}
