// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package auth

import (
	"fmt"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
)

// NewSessionStore builds the configured session store backend.
func NewSessionStore(cfg *config.SecurityConfig) (SessionStore, error) {
	switch cfg.SessionStore {
	case "", "memory":
		logging.Info().Msg("Using in-memory session store")
		return NewMemorySessionStore(), nil
	case "badger":
		path := cfg.SessionStorePath
		if path == "" {
			return nil, fmt.Errorf("auth: session_store_path is required for the badger session store")
		}
		logging.Info().Str("path", path).Msg("Using Badger session store")
		return NewBadgerSessionStore(path)
	default:
		return nil, fmt.Errorf("auth: unknown session store %q", cfg.SessionStore)
	}
}
