// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/venicegeo/bf-api/internal/config"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "beachfront_session"

// ErrInvalidCookie indicates the session cookie is missing, malformed,
// or carries a bad signature.
var ErrInvalidCookie = errors.New("auth: invalid session cookie")

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// CookieManager signs and verifies the session cookie. The cookie
// payload is a JWT carrying only the opaque session ID; all session
// state lives server-side.
type CookieManager struct {
	secret []byte
	secure bool
}

// NewCookieManager creates a cookie manager from security settings.
// The session secret must be at least 32 bytes.
func NewCookieManager(cfg *config.SecurityConfig) (*CookieManager, error) {
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("auth: session_secret must be at least 32 characters")
	}
	return &CookieManager{
		secret: []byte(cfg.SessionSecret),
		secure: cfg.CookieSecure,
	}, nil
}

// Issue writes the signed session cookie to the response.
func (m *CookieManager) Issue(w http.ResponseWriter, session *Session) error {
	claims := &sessionClaims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("auth: cannot sign session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read extracts and verifies the session ID from the request cookie.
func (m *CookieManager) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", ErrInvalidCookie
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid || claims.SessionID == "" {
		return "", ErrInvalidCookie
	}
	return claims.SessionID, nil
}

// Clear expires the session cookie.
func (m *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
