// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package scenes talks to the imagery catalog (bf-ia-broker): scene
// metadata lookup, GeoTIFF activation, and the harvest event type used
// for trigger installation.
package scenes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
)

var (
	// ErrUnreachable indicates a connection-level failure reaching
	// the catalog.
	ErrUnreachable = errors.New("scenes: catalog is unreachable")

	// ErrNotFound indicates the scene does not exist in the catalog.
	ErrNotFound = errors.New("scenes: scene not found")

	// ErrNotActivatable indicates the scene has no downloadable
	// GeoTIFF resource.
	ErrNotActivatable = errors.New("scenes: scene cannot be activated")
)

// HTTPError covers unexpected catalog responses.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("scenes: unexpected HTTP status %d", e.StatusCode)
}

// InvalidResponseError indicates a catalog response that does not match
// the contract.
type InvalidResponseError struct {
	Details      string
	ResponseText string
}

func (e *InvalidResponseError) Error() string {
	return "scenes: invalid response: " + e.Details
}

// Catalog is the surface consumed by the job service and harvest
// installer.
type Catalog interface {
	Get(ctx context.Context, sceneID string) (*models.Scene, error)
	Activate(ctx context.Context, sceneID string) (string, error)
	GetEventTypeID(ctx context.Context) (string, error)
}

// Client is the imagery catalog HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a catalog client from configuration.
func NewClient(cfg *config.CatalogConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL(),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the catalog location. Used by tests.
func (c *Client) SetBaseURL(rawURL string) {
	c.baseURL = rawURL
}

// Get fetches scene metadata. The catalog returns a GeoJSON feature
// whose properties carry capture time, cloud cover, and sensor.
func (c *Client) Get(ctx context.Context, sceneID string) (*models.Scene, error) {
	body, err := c.do(ctx, "/image/"+url.PathEscape(sceneID), "get_scene")
	if err != nil {
		return nil, err
	}

	var feature struct {
		ID         string    `json:"id"`
		BBox       []float64 `json:"bbox"`
		Properties struct {
			AcquiredDate string  `json:"acquiredDate"`
			CloudCover   float64 `json:"cloudCover"`
			SensorName   string  `json:"sensorName"`
			Resolution   int     `json:"resolution"`
			Location     string  `json:"location"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(body, &feature); err != nil {
		return nil, &InvalidResponseError{Details: "scene is not valid JSON", ResponseText: string(body)}
	}
	if len(feature.BBox) != 4 {
		return nil, &InvalidResponseError{Details: "scene bbox is missing or malformed", ResponseText: string(body)}
	}

	capturedOn, err := time.Parse(time.RFC3339, feature.Properties.AcquiredDate)
	if err != nil {
		return nil, &InvalidResponseError{Details: "acquiredDate is missing or malformed", ResponseText: string(body)}
	}

	return &models.Scene{
		SceneID:    sceneID,
		CapturedOn: capturedOn.UTC(),
		CloudCover: feature.Properties.CloudCover,
		BBox: models.BBox{
			MinX: feature.BBox[0],
			MinY: feature.BBox[1],
			MaxX: feature.BBox[2],
			MaxY: feature.BBox[3],
		},
		SensorName: feature.Properties.SensorName,
		GeoTIFFURL: feature.Properties.Location,
	}, nil
}

// Activate requests GeoTIFF availability for a scene and returns the
// download URL clients should be redirected to.
func (c *Client) Activate(ctx context.Context, sceneID string) (string, error) {
	scene, err := c.Get(ctx, sceneID)
	if err != nil {
		return "", err
	}
	if scene.GeoTIFFURL == "" {
		return "", ErrNotActivatable
	}
	return scene.GeoTIFFURL, nil
}

// GetEventTypeID retrieves the identifier of the catalog's harvest
// event type, needed when installing the Piazza trigger.
func (c *Client) GetEventTypeID(ctx context.Context) (string, error) {
	body, err := c.do(ctx, "/eventTypeID", "get_event_type_id")
	if err != nil {
		return "", err
	}

	var payload struct {
		EventTypeID string `json:"eventTypeId"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.EventTypeID == "" {
		return "", &InvalidResponseError{Details: "eventTypeId is missing", ResponseText: string(body)}
	}
	return payload.EventTypeID, nil
}

func (c *Client) do(ctx context.Context, path, operation string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("catalog", operation, time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("operation", operation).Msg("Scene catalog unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, &HTTPError{StatusCode: resp.StatusCode}
	}
	return body, nil
}
