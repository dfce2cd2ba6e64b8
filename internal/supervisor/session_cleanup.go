// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package supervisor

import (
	"context"
	"time"

	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/logging"
)

// SessionCleanupService periodically evicts expired sessions from the
// session store. The Badger store expires entries itself, but the
// in-memory store needs the sweep.
type SessionCleanupService struct {
	store    auth.SessionStore
	interval time.Duration
	name     string
}

// NewSessionCleanupService creates the cleanup loop. The interval
// defaults to 15 minutes.
func NewSessionCleanupService(store auth.SessionStore, interval time.Duration) *SessionCleanupService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &SessionCleanupService{
		store:    store,
		interval: interval,
		name:     "session-cleanup",
	}
}

// Serve implements suture.Service.
func (s *SessionCleanupService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed, err := s.store.CleanupExpired(ctx)
			if err != nil {
				logging.Err(err).Msg("Session cleanup failed")
				continue
			}
			if removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Evicted expired sessions")
			}
		}
	}
}

// String implements fmt.Stringer for suture log messages.
func (s *SessionCleanupService) String() string {
	return s.name
}
