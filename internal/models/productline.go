// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

import "time"

// Product line status values. Status is derived at read time from the
// stop date and never stored.
const (
	ProductLineStatusActive   = "Active"
	ProductLineStatusInactive = "Inactive"
)

// FormatISO8601 is the timestamp layout used in serialized properties.
const FormatISO8601 = "2006-01-02T15:04:05Z"

// ProductLine is a standing subscription linking an algorithm, a
// geographic/temporal filter, and an owner. Matching imagery scenes
// automatically spawn Jobs in it.
type ProductLine struct {
	ProductLineID   string
	AlgorithmID     string
	AlgorithmName   string
	BBox            BBox
	Category        string
	CreatedBy       string
	CreatedOn       time.Time
	MaxCloudCover   int
	Name            string
	OwnedBy         string
	SpatialFilterID string
	StartOn         time.Time

	// StopOn is nil for open-ended product lines.
	StopOn *time.Time
}

// Status derives the product line state from the stop date: Active if
// open-ended or if today is on or before the stop date.
func (p *ProductLine) Status(now time.Time) string {
	if p.StopOn == nil {
		return ProductLineStatusActive
	}
	today := now.UTC().Truncate(24 * time.Hour)
	stop := p.StopOn.UTC().Truncate(24 * time.Hour)
	if today.After(stop) {
		return ProductLineStatusInactive
	}
	return ProductLineStatusActive
}

// Serialize converts the product line to a GeoJSON Feature.
func (p *ProductLine) Serialize(now time.Time) Feature {
	return Feature{
		Type:     "Feature",
		ID:       p.ProductLineID,
		Geometry: p.BBox.Polygon(),
		Properties: map[string]interface{}{
			"algorithm_name":    p.AlgorithmName,
			"category":          emptyToNil(p.Category),
			"created_by":        p.CreatedBy,
			"created_on":        formatTime(&p.CreatedOn),
			"max_cloud_cover":   p.MaxCloudCover,
			"name":              p.Name,
			"owned_by":          p.OwnedBy,
			"spatial_filter_id": emptyToNil(p.SpatialFilterID),
			"start_on":          formatTime(&p.StartOn),
			"status":            p.Status(now),
			"stop_on":           formatTime(p.StopOn),
			"type":              "PRODUCT_LINE",
		},
	}
}

// ProductLineSummary is the projection returned by the harvest-event
// candidate query: just enough to decide whether to spawn or link a job.
type ProductLineSummary struct {
	ProductLineID string
	AlgorithmID   string
	Name          string
	OwnedBy       string
}

func emptyToNil(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(FormatISO8601)
}
