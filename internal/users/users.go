// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package users provisions and authenticates user accounts. Accounts
// are keyed by the GeoAxis distinguished name and carry an API key for
// programmatic access.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/geoaxis"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
)

var patternAPIKey = regexp.MustCompile(`^[a-f0-9]{32}$`)

var (
	// ErrMalformedAPIKey indicates the presented credential does not
	// even look like an API key. No database lookup is made.
	ErrMalformedAPIKey = errors.New("users: malformed API key")

	// ErrUnauthorized indicates the credential is well-formed but not
	// bound to any account.
	ErrUnauthorized = errors.New("users: Beachfront API key is not active")

	// ErrNotFound indicates no account exists with the requested ID.
	ErrNotFound = errors.New("users: user not found")
)

// OAuthClient is the slice of the GeoAxis client this service needs.
type OAuthClient interface {
	Authorize(redirectURI, state string) string
	RequestToken(ctx context.Context, redirectURI, authCode string) (*geoaxis.Token, error)
	GetProfile(ctx context.Context, accessToken string) (*geoaxis.Profile, error)
}

// Service authenticates users and provisions accounts on first login.
type Service struct {
	db          *database.DB
	oauth       OAuthClient
	redirectURI string
}

// NewService creates the user service.
func NewService(db *database.DB, oauth OAuthClient, redirectURI string) *Service {
	return &Service{db: db, oauth: oauth, redirectURI: redirectURI}
}

// IsAPIKey reports whether the string looks like a Beachfront API key.
func IsAPIKey(s string) bool {
	return patternAPIKey.MatchString(s)
}

// CreateOAuthURL returns the GeoAxis authorization URL to redirect the
// user to.
func (s *Service) CreateOAuthURL(state string) string {
	return s.oauth.Authorize(s.redirectURI, state)
}

// AuthenticateViaAPIKey resolves an API key to its user. Malformed
// keys are rejected without touching the database.
func (s *Service) AuthenticateViaAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	if !patternAPIKey.MatchString(apiKey) {
		metrics.AuthFailuresTotal.WithLabelValues("malformed_api_key").Inc()
		logging.Warn().Msg("Cannot verify malformed API key")
		return nil, ErrMalformedAPIKey
	}

	user, err := s.db.GetUserByAPIKey(ctx, apiKey)
	if errors.Is(err, database.ErrNotFound) {
		metrics.AuthFailuresTotal.WithLabelValues("beachfront_unauthorized").Inc()
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up API key: %w", err)
	}
	return user, nil
}

// AuthenticateViaGeoAxis completes the OAuth code exchange and returns
// the user, provisioning an account with a fresh API key on first
// login.
func (s *Service) AuthenticateViaGeoAxis(ctx context.Context, authCode string) (*models.User, error) {
	token, err := s.oauth.RequestToken(ctx, s.redirectURI, authCode)
	if err != nil {
		return nil, err
	}

	profile, err := s.oauth.GetProfile(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.GetByID(ctx, profile.DistinguishedName)
	if errors.Is(err, ErrNotFound) {
		user, err = s.createUser(ctx, profile.DistinguishedName, profile.CommonName)
	}
	if err != nil {
		return nil, err
	}

	logging.Info().Str("user_id", user.UserID).Msg("User has logged in successfully")
	return user, nil
}

// GetByID retrieves a user by their distinguished name.
func (s *Service) GetByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %q: %w", userID, err)
	}
	return user, nil
}

// GetOrCreate returns the account with the given ID, provisioning it
// with a fresh API key when it does not exist yet. Used by the
// temporary username/password login path.
func (s *Service) GetOrCreate(ctx context.Context, userID, userName string) (*models.User, error) {
	user, err := s.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return s.createUser(ctx, userID, userName)
	}
	return user, err
}

func (s *Service) createUser(ctx context.Context, userID, userName string) (*models.User, error) {
	apiKey := strings.ReplaceAll(uuid.New().String(), "-", "")

	logging.Info().Str("user_id", userID).Msg("Creating user account")
	user := &models.User{
		UserID: userID,
		Name:   userName,
		APIKey: apiKey,
	}
	if err := s.db.InsertUser(ctx, user); err != nil {
		// A concurrent login already provisioned the account.
		if errors.Is(err, database.ErrDuplicateKey) {
			return s.GetByID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create user account %q: %w", userID, err)
	}
	return user, nil
}
