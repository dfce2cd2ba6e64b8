// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinX float64 `json:"min_x" validate:"min=-180,max=180"`
	MinY float64 `json:"min_y" validate:"min=-90,max=90"`
	MaxX float64 `json:"max_x" validate:"min=-180,max=180"`
	MaxY float64 `json:"max_y" validate:"min=-90,max=90"`
}

// Geometry is a GeoJSON geometry object.
type Geometry struct {
	Type        string        `json:"type"`
	Coordinates [][][]float64 `json:"coordinates"`
}

// Feature is a GeoJSON Feature.
type Feature struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureCollection wraps features in a FeatureCollection, never
// serializing a null features array.
func NewFeatureCollection(features []Feature) FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
}

// Polygon converts the bounding box to a closed GeoJSON polygon ring
// starting from the southwest corner.
func (b BBox) Polygon() Geometry {
	return Geometry{
		Type: "Polygon",
		Coordinates: [][][]float64{{
			{b.MinX, b.MinY},
			{b.MinX, b.MaxY},
			{b.MaxX, b.MaxY},
			{b.MaxX, b.MinY},
			{b.MinX, b.MinY},
		}},
	}
}
