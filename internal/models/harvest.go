// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

// Harvest event dispositions returned to the event gateway.
const (
	HarvestAccept    = "Accept"
	HarvestDisregard = "Disregard"
)

// HarvestEvent is an untrusted-until-verified notification that a new
// imagery scene has been cataloged. It is consumed once and never
// persisted as its own entity.
type HarvestEvent struct {
	SceneID    string  `json:"scene_id" validate:"required,max=64"`
	Signature  string  `json:"__signature__" validate:"required"`
	CapturedOn string  `json:"captured_on"`
	CloudCover int     `json:"cloud_cover" validate:"min=0,max=100"`
	MinX       float64 `json:"min_x" validate:"min=-180,max=180"`
	MinY       float64 `json:"min_y" validate:"min=-90,max=90"`
	MaxX       float64 `json:"max_x" validate:"min=-180,max=180"`
	MaxY       float64 `json:"max_y" validate:"min=-90,max=90"`
}

// BBox returns the event footprint as a bounding box.
func (e *HarvestEvent) BBox() BBox {
	return BBox{MinX: e.MinX, MinY: e.MinY, MaxX: e.MaxX, MaxY: e.MaxY}
}
