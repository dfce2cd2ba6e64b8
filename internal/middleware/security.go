// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package middleware

import (
	"net/http"

	"github.com/venicegeo/bf-api/internal/logging"
)

// EnforceHTTPS rejects plain-HTTP requests. The check is
// X-Forwarded-Proto aware so it works behind the platform's TLS
// terminating load balancer.
func EnforceHTTPS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSecure(r) {
			logging.Ctx(r.Context()).Warn().
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Msg("Rejecting insecure request")
			http.Error(w, "Please retry request via HTTPS", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return r.Header.Get("X-Forwarded-Proto") == "https"
}

// SecurityHeaders sets the default hardening response headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		next.ServeHTTP(w, r)
	})
}
