// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
)

// oauthStateCookieName carries the anti-forgery state across the
// GeoAxis redirect round trip.
const oauthStateCookieName = "beachfront_oauth_state"

// TemporaryAuthRequest is the username/password login payload for
// environments without a GeoAxis provider.
type TemporaryAuthRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=256"`
}

// handleLogin tells an unauthenticated client where to begin the
// OAuth flow.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"oauth_url": "/login/geoaxis",
	})
}

// handleLoginGeoAxis starts the OAuth authorization code flow by
// redirecting to the GeoAxis consent page.
func (s *Server) handleLoginGeoAxis(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "Cannot start login flow")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookieName,
		Value:    state,
		Path:     "/login",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Security.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.users.CreateOAuthURL(state), http.StatusFound)
}

// handleLoginCallback completes the OAuth flow: it validates the
// state, exchanges the authorization code for a profile, provisions
// the user, and opens a session.
func (s *Server) handleLoginCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		respondError(w, http.StatusBadRequest, "malformed_callback", "Missing \"code\" or \"state\" parameter")
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		metrics.AuthFailuresTotal.WithLabelValues("oauth_state").Inc()
		respondError(w, http.StatusUnauthorized, "unauthorized", "OAuth state is not valid")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookieName, Path: "/login", MaxAge: -1})

	user, err := s.users.AuthenticateViaGeoAxis(r.Context(), code)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if err := s.openSession(r.Context(), w, user); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("user_id", user.UserID).Msg("User logged in via GeoAxis")
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleTemporaryAuth authenticates with the configured username and
// bcrypt password digest. Disabled unless both are configured.
func (s *Server) handleTemporaryAuth(w http.ResponseWriter, r *http.Request) {
	username := s.cfg.Security.TemporaryAuthUsername
	passwordHash := s.cfg.Security.TemporaryAuthPasswordHash
	if username == "" || passwordHash == "" {
		respondError(w, http.StatusNotFound, "not_found", "Temporary authentication is not enabled")
		return
	}

	var req TemporaryAuthRequest
	if !decodeBody(w, r, &req) {
		return
	}
	usernameMatch := subtle.ConstantTimeCompare([]byte(req.Username), []byte(username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password))
	if !usernameMatch || passwordErr != nil {
		metrics.AuthFailuresTotal.WithLabelValues("temporary_auth").Inc()
		respondError(w, http.StatusUnauthorized, "unauthorized", "Credentials are not valid")
		return
	}

	user, err := s.users.GetOrCreate(r.Context(), "temporary:"+req.Username, req.Username)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if err := s.openSession(r.Context(), w, user); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("user_id", user.UserID).Msg("User logged in via temporary auth")
	respondJSON(w, http.StatusOK, serializeUser(user))
}

// handleLogout tears down the caller's session. API-key callers have
// no session and get a no-op success.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if session := auth.SessionFromContext(r.Context()); session != nil {
		if err := s.sessions.Delete(r.Context(), session.ID); err != nil {
			logging.Ctx(r.Context()).Err(err).Msg("Cannot delete session")
		}
		metrics.SessionsActive.Dec()
	}
	s.cookies.Clear(w)
	respondJSON(w, http.StatusOK, map[string]interface{}{"logged_out": true})
}

// handleGetUser returns the authenticated caller's profile, including
// the API key for machine access and the CSRF token for the UI.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	payload := serializeUser(user)
	if session := auth.SessionFromContext(r.Context()); session != nil {
		payload["csrf_token"] = session.CSRFToken
	}
	respondJSON(w, http.StatusOK, payload)
}

// openSession creates and stores a session for the user and issues
// the signed cookie.
func (s *Server) openSession(ctx context.Context, w http.ResponseWriter, user *models.User) error {
	session := auth.NewSession(user.UserID, user.APIKey, s.auth.SessionTTL())
	if err := s.sessions.Create(ctx, session); err != nil {
		return err
	}
	if err := s.cookies.Issue(w, session); err != nil {
		return err
	}
	metrics.SessionsActive.Inc()
	return nil
}

func serializeUser(user *models.User) map[string]interface{} {
	return map[string]interface{}{
		"user_id":    user.UserID,
		"name":       user.Name,
		"api_key":    user.APIKey,
		"created_on": user.CreatedOn,
	}
}

func generateOAuthState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
