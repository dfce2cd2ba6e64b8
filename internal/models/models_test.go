// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobIsTerminal(t *testing.T) {
	cases := map[string]bool{
		JobStatusSubmitted: false,
		JobStatusRunning:   false,
		JobStatusSuccess:   true,
		JobStatusError:     true,
		JobStatusTimedOut:  true,
		JobStatusCancelled: true,
	}
	for status, want := range cases {
		j := Job{Status: status}
		if got := j.IsTerminal(); got != want {
			t.Errorf("IsTerminal() for %q = %v, want %v", status, got, want)
		}
	}
}

func TestJobSerialize(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 30, 0, 0, time.UTC)
	j := Job{
		JobID:         "job-123",
		AlgorithmID:   "svc-shoreline",
		AlgorithmName: "Shoreline Detection",
		CreatedBy:     "alice",
		CreatedOn:     created,
		Name:          "Test Run",
		SceneID:       "landsat:LC8012",
		Status:        JobStatusSuccess,
		BBox:          BBox{MinX: -1, MinY: -2, MaxX: 3, MaxY: 4},
	}

	feature := j.Serialize()

	if feature.Type != "Feature" {
		t.Errorf("type = %q, want Feature", feature.Type)
	}
	if feature.ID != "job-123" {
		t.Errorf("id = %q, want job-123", feature.ID)
	}
	if feature.Geometry.Type != "Polygon" {
		t.Errorf("geometry type = %q, want Polygon", feature.Geometry.Type)
	}
	if got := feature.Properties["type"]; got != "JOB" {
		t.Errorf("properties.type = %v, want JOB", got)
	}
	if got := feature.Properties["status"]; got != JobStatusSuccess {
		t.Errorf("properties.status = %v, want %q", got, JobStatusSuccess)
	}
	if got := feature.Properties["created_on"]; got != "2026-05-01T12:30:00Z" {
		t.Errorf("properties.created_on = %v, want 2026-05-01T12:30:00Z", got)
	}
}

func TestProductLineStatus(t *testing.T) {
	now := time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)
	stopToday := time.Date(2026, 5, 15, 0, 0, 0, 0, time.UTC)
	stopYesterday := time.Date(2026, 5, 14, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name   string
		stopOn *time.Time
		want   string
	}{
		{"open ended", nil, ProductLineStatusActive},
		{"stops today", &stopToday, ProductLineStatusActive},
		{"stopped yesterday", &stopYesterday, ProductLineStatusInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := ProductLine{StopOn: tc.stopOn}
			if got := p.Status(now); got != tc.want {
				t.Errorf("Status() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProductLineSerialize(t *testing.T) {
	now := time.Date(2026, 5, 15, 9, 0, 0, 0, time.UTC)
	p := ProductLine{
		ProductLineID: "abcdef0123456789",
		AlgorithmName: "Shoreline Detection",
		CreatedBy:     "alice",
		CreatedOn:     now.Add(-time.Hour),
		MaxCloudCover: 20,
		Name:          "Gulf Coast",
		OwnedBy:       "alice",
		StartOn:       now.Add(-48 * time.Hour),
	}

	feature := p.Serialize(now)

	if feature.ID != "abcdef0123456789" {
		t.Errorf("id = %q", feature.ID)
	}
	if got := feature.Properties["type"]; got != "PRODUCT_LINE" {
		t.Errorf("properties.type = %v, want PRODUCT_LINE", got)
	}
	if got := feature.Properties["status"]; got != ProductLineStatusActive {
		t.Errorf("properties.status = %v, want Active", got)
	}
	if got := feature.Properties["stop_on"]; got != nil {
		t.Errorf("properties.stop_on = %v, want nil", got)
	}
	if got := feature.Properties["category"]; got != nil {
		t.Errorf("empty category should serialize as nil, got %v", got)
	}
	if got := feature.Properties["spatial_filter_id"]; got != nil {
		t.Errorf("empty spatial_filter_id should serialize as nil, got %v", got)
	}
}

func TestBBoxPolygonClosedRing(t *testing.T) {
	b := BBox{MinX: -10, MinY: -20, MaxX: 30, MaxY: 40}
	geom := b.Polygon()

	if geom.Type != "Polygon" {
		t.Fatalf("type = %q, want Polygon", geom.Type)
	}
	if len(geom.Coordinates) != 1 {
		t.Fatalf("expected 1 ring, got %d", len(geom.Coordinates))
	}
	ring := geom.Coordinates[0]
	if len(ring) != 5 {
		t.Fatalf("expected 5 points, got %d", len(ring))
	}
	if ring[0][0] != -10 || ring[0][1] != -20 {
		t.Errorf("ring does not start at the southwest corner: %v", ring[0])
	}
	if ring[0][0] != ring[4][0] || ring[0][1] != ring[4][1] {
		t.Errorf("ring is not closed: first %v, last %v", ring[0], ring[4])
	}
}

func TestNewFeatureCollectionNeverNull(t *testing.T) {
	fc := NewFeatureCollection(nil)
	if fc.Type != "FeatureCollection" {
		t.Errorf("type = %q", fc.Type)
	}
	if fc.Features == nil {
		t.Fatal("features must not be nil")
	}

	raw, err := json.Marshal(fc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"type":"FeatureCollection","features":[]}` {
		t.Errorf("unexpected serialization: %s", raw)
	}
}

func TestHarvestEventBBox(t *testing.T) {
	e := HarvestEvent{MinX: -1.5, MinY: -2.5, MaxX: 3.5, MaxY: 4.5}
	b := e.BBox()
	if b.MinX != -1.5 || b.MinY != -2.5 || b.MaxX != 3.5 || b.MaxY != 4.5 {
		t.Errorf("unexpected bbox: %+v", b)
	}
}
