// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package geoaxis implements the OAuth 2.0 authorization-code exchange
// against the GeoAxis identity provider.
//
// OAuth flow:
//  1. Redirect the user to the GeoAxis authorization URL
//  2. GeoAxis redirects back with an authorization code
//  3. Exchange the code for a Bearer access token
//  4. Fetch the user profile with the token
//
// Every call is a single synchronous request; there is no retry and no
// token caching. Failures map onto a four-way taxonomy so callers can
// tell "retry later" (ErrUnreachable) apart from "fix the request"
// (ErrUnauthorized, ErrHTTP) and "provider is misbehaving"
// (InvalidResponseError).
package geoaxis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
)

const (
	authorizePath = "/ms_oauth/oauth2/endpoints/oauthservice/authorize"
	tokenPath     = "/ms_oauth/oauth2/endpoints/oauthservice/tokens"
	profilePath   = "/ms_oauth/resources/userprofile/me"
)

var (
	// ErrUnreachable indicates a connection-level failure reaching
	// GeoAxis: DNS, refused connection, or timeout.
	ErrUnreachable = errors.New("geoaxis: provider is unreachable")

	// ErrUnauthorized indicates GeoAxis rejected the credentials or
	// authorization code with HTTP 401.
	ErrUnauthorized = errors.New("geoaxis: unauthorized")
)

// HTTPError covers non-200, non-401 responses from GeoAxis.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("geoaxis: unexpected HTTP status %d", e.StatusCode)
}

// InvalidResponseError indicates a 200 response whose body does not
// match the contract. ResponseText carries the raw body for operator
// diagnostics; it must never be surfaced to end users.
type InvalidResponseError struct {
	Details      string
	ResponseText string
}

func (e *InvalidResponseError) Error() string {
	return "geoaxis: invalid response: " + e.Details
}

// Token is the OAuth 2.0 access token response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Profile is the GeoAxis user profile. All six fields are required.
type Profile struct {
	DistinguishedName string `json:"DN"`
	Email             string `json:"email"`
	FirstName         string `json:"firstname"`
	LastName          string `json:"lastname"`
	Username          string `json:"username"`
	CommonName        string `json:"commonname"`
}

// Client talks to the GeoAxis OAuth endpoints.
type Client struct {
	scheme       string
	host         string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient creates a GeoAxis client from configuration.
func NewClient(cfg *config.GeoAxisConfig) *Client {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		scheme:       scheme,
		host:         cfg.Host,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Authorize constructs the GeoAxis authorization URL the user should be
// redirected to. Pure string construction, no network access.
func (c *Client) Authorize(redirectURI, state string) string {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", "code")
	params.Set("state", state)
	return c.scheme + "://" + c.host + authorizePath + "?" + params.Encode()
}

// RequestToken exchanges an authorization code for an access token.
// The response must be HTTP 200 with token_type exactly "Bearer" and a
// non-empty access_token; anything else maps to the error taxonomy.
func (c *Client) RequestToken(ctx context.Context, redirectURI, authCode string) (*Token, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", redirectURI)
	data.Set("code", authCode)

	endpoint := c.scheme + "://" + c.host + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("geoaxis", "request_token", time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("host", c.host).Msg("GeoAxis token endpoint unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &InvalidResponseError{Details: "response is not valid JSON", ResponseText: string(body)}
	}
	if token.TokenType != "Bearer" {
		return nil, &InvalidResponseError{Details: `token_type is missing or not "Bearer"`, ResponseText: string(body)}
	}
	if token.AccessToken == "" {
		return nil, &InvalidResponseError{Details: "access_token is missing", ResponseText: string(body)}
	}
	return &token, nil
}

// GetProfile fetches the user profile with a Bearer token. Every
// profile field must be present and non-empty.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*Profile, error) {
	endpoint := c.scheme + "://" + c.host + profilePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("geoaxis", "get_profile", time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("host", c.host).Msg("GeoAxis profile endpoint unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer closeBody(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, &InvalidResponseError{Details: "response is not valid JSON", ResponseText: string(body)}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"DN", profile.DistinguishedName},
		{"email", profile.Email},
		{"firstname", profile.FirstName},
		{"lastname", profile.LastName},
		{"username", profile.Username},
		{"commonname", profile.CommonName},
	} {
		if field.value == "" {
			return nil, &InvalidResponseError{
				Details:      fmt.Sprintf("profile field %q is missing", field.name),
				ResponseText: string(body),
			}
		}
	}
	return &profile, nil
}

// SetBaseURL overrides the provider location. Used by tests to point
// the client at a mock server.
func (c *Client) SetBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	c.scheme = u.Scheme
	c.host = u.Host
	return nil
}

func closeBody(body io.ReadCloser) {
	_ = body.Close()
}
