// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"regexp"
	"time"

	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/users"
)

// CSRFHeaderName is the request header carrying the double-submit
// token.
const CSRFHeaderName = "X-CSRF-Token"

// publicEndpoints do not require credentials. The harvest webhook is
// guarded by its own event signature instead.
var publicEndpoints = []*regexp.Regexp{
	regexp.MustCompile(`^/$`),
	regexp.MustCompile(`^/favicon.ico$`),
	regexp.MustCompile(`^/login`),
	regexp.MustCompile(`^/metrics$`),
	regexp.MustCompile(`^/v0/scene/[^/]+\.TIF$`),
	regexp.MustCompile(`^/v0/productline/event$`),
}

// nonExtendingEndpoints are polled by the UI; serving them does not
// push the session expiry forward, so an idle browser still logs out.
var nonExtendingEndpoints = map[string]bool{
	"/v0/job":         true,
	"/v0/productline": true,
}

type contextKey int

const (
	userContextKey contextKey = iota
	sessionContextKey
)

// WithUser attaches the authenticated user to the context.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, or nil on public
// endpoints.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// WithSession attaches the browser session to the context. API-key
// requests carry no session.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext returns the browser session, or nil.
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey).(*Session)
	return session
}

// Authenticator resolves request credentials to a user. Browser
// requests present the signed session cookie; programmatic clients
// present their API key as the username of an HTTP Basic header.
type Authenticator struct {
	users      *users.Service
	store      SessionStore
	cookies    *CookieManager
	sessionTTL time.Duration
}

// NewAuthenticator creates the authentication middleware.
func NewAuthenticator(userService *users.Service, store SessionStore, cookies *CookieManager, sessionTTL time.Duration) *Authenticator {
	if sessionTTL <= 0 {
		sessionTTL = 30 * time.Minute
	}
	return &Authenticator{
		users:      userService,
		store:      store,
		cookies:    cookies,
		sessionTTL: sessionTTL,
	}
}

// SessionTTL returns the configured session lifetime.
func (a *Authenticator) SessionTTL() time.Duration {
	return a.sessionTTL
}

// Middleware authenticates every non-public request.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if apiKey, ok := requestAPIKey(r); ok {
			user, err := a.users.AuthenticateViaAPIKey(r.Context(), apiKey)
			if err != nil {
				unauthorized(w, "Beachfront API key is not active")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
			return
		}

		session, err := a.resolveSession(r)
		if err != nil {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_session").Inc()
			unauthorized(w, "Session is not active")
			return
		}

		user, err := a.users.GetByID(r.Context(), session.UserID)
		if err != nil {
			logging.Ctx(r.Context()).Err(err).Str("user_id", session.UserID).Msg("Session references unknown user")
			unauthorized(w, "Session is not active")
			return
		}

		if !nonExtendingEndpoints[r.URL.Path] {
			if err := a.store.Touch(r.Context(), session.ID, time.Now().UTC().Add(a.sessionTTL)); err != nil {
				logging.Ctx(r.Context()).Err(err).Msg("Cannot extend session")
			}
		}

		ctx := WithSession(WithUser(r.Context(), user), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CSRFMiddleware rejects state-changing browser requests that do not
// echo the session's CSRF token, the OWASP double-submit pattern.
// API-key requests carry no session and are exempt.
func CSRFMiddleware(next http.Handler) http.Handler {
	safeMethods := map[string]bool{
		http.MethodGet:     true,
		http.MethodHead:    true,
		http.MethodOptions: true,
		http.MethodTrace:   true,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}
		session := SessionFromContext(r.Context())
		if session == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := r.Header.Get(CSRFHeaderName)
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(session.CSRFToken)) != 1 {
			metrics.AuthFailuresTotal.WithLabelValues("csrf").Inc()
			logging.Ctx(r.Context()).Warn().Str("path", r.URL.Path).Msg("Rejecting request with bad CSRF token")
			http.Error(w, "Forbidden: CSRF token missing or invalid", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// resolveSession reads the signed cookie and loads the session row.
func (a *Authenticator) resolveSession(r *http.Request) (*Session, error) {
	sessionID, err := a.cookies.Read(r)
	if err != nil {
		return nil, err
	}
	return a.store.Get(r.Context(), sessionID)
}

// requestAPIKey extracts an API key presented as the username of an
// HTTP Basic header. Any Basic credential is treated as an API key
// attempt; malformed keys are rejected by the user service.
func requestAPIKey(r *http.Request) (string, bool) {
	username, _, ok := r.BasicAuth()
	return username, ok && username != ""
}

func isPublicEndpoint(path string) bool {
	for _, pattern := range publicEndpoints {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="beachfront"`)
	http.Error(w, "Unauthorized: "+message, http.StatusUnauthorized)
}
