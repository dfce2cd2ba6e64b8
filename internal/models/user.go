// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

import "time"

// User is an authenticated account. UserID is the GeoAxis
// distinguished name for OAuth-provisioned accounts.
type User struct {
	UserID    string
	Name      string
	APIKey    string
	CreatedOn time.Time
}

// Scene is a catalog entry for a single imagery capture.
type Scene struct {
	SceneID    string
	CapturedOn time.Time
	CloudCover float64
	BBox       BBox
	SensorName string

	// GeoTIFFURL is populated once the scene is activated for download.
	GeoTIFFURL string
}

// Algorithm is a processing service registered with the Piazza
// gateway.
type Algorithm struct {
	ServiceID     string
	Name          string
	Description   string
	Interface     string
	MaxCloudCover int
	Version       string
}

// Serialize returns the JSON-friendly representation of the algorithm.
func (a *Algorithm) Serialize() map[string]interface{} {
	return map[string]interface{}{
		"service_id":      a.ServiceID,
		"name":            a.Name,
		"description":     a.Description,
		"interface":       a.Interface,
		"max_cloud_cover": a.MaxCloudCover,
		"version":         a.Version,
	}
}
