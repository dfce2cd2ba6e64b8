// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/productlines"
)

// CreateProductLineRequest is the payload for standing up automated
// detection over an area of interest.
type CreateProductLineRequest struct {
	AlgorithmID     string  `json:"algorithm_id" validate:"required,max=64"`
	Category        string  `json:"category" validate:"max=64"`
	MaxCloudCover   int     `json:"max_cloud_cover" validate:"min=0,max=100"`
	MinX            float64 `json:"min_x" validate:"min=-180,max=180"`
	MinY            float64 `json:"min_y" validate:"min=-90,max=90"`
	MaxX            float64 `json:"max_x" validate:"min=-180,max=180"`
	MaxY            float64 `json:"max_y" validate:"min=-90,max=90"`
	Name            string  `json:"name" validate:"required,max=100"`
	SpatialFilterID string  `json:"spatial_filter_id" validate:"max=64"`
	StartOn         string  `json:"start_on" validate:"required"`
	StopOn          string  `json:"stop_on"`
}

func (s *Server) handleCreateProductLine(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	var req CreateProductLineRequest
	if !decodeBody(w, r, &req) {
		return
	}

	startOn, err := parseDate(req.StartOn)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed_date", "Field \"start_on\" must be an ISO 8601 date")
		return
	}
	var stopOn *time.Time
	if req.StopOn != "" {
		parsed, err := parseDate(req.StopOn)
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed_date", "Field \"stop_on\" must be an ISO 8601 date")
			return
		}
		stopOn = &parsed
	}

	productLine, err := s.productLines.Create(r.Context(), user.UserID, productlines.CreateParams{
		AlgorithmID:     req.AlgorithmID,
		BBox:            models.BBox{MinX: req.MinX, MinY: req.MinY, MaxX: req.MaxX, MaxY: req.MaxY},
		Category:        req.Category,
		MaxCloudCover:   req.MaxCloudCover,
		Name:            req.Name,
		SpatialFilterID: req.SpatialFilterID,
		StartOn:         startOn,
		StopOn:          stopOn,
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("productline_id", productLine.ProductLineID).
		Str("algorithm_id", productLine.AlgorithmID).
		Msg("Product line created")
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"productline": productLine.Serialize(time.Now().UTC()),
	})
}

func (s *Server) handleListProductLines(w http.ResponseWriter, r *http.Request) {
	productLines, err := s.productLines.GetAll(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	now := time.Now().UTC()
	features := make([]models.Feature, 0, len(productLines))
	for i := range productLines {
		features = append(features, productLines[i].Serialize(now))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"productlines": models.NewFeatureCollection(features),
	})
}

func (s *Server) handleDeleteProductLine(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	productLineID := chi.URLParam(r, "productLineID")
	if err := s.productLines.Delete(r.Context(), user.UserID, productLineID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("productline_id", productLineID).Msg("Product line deleted")
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": productLineID})
}

// handleHarvestEvent receives scene harvest notifications from the
// Piazza event bus. The response body is plain text: "Accept" when
// the event was reconciled, "Disregard" when no product line wanted
// it. Anything but a 2xx tells Piazza to redeliver.
func (s *Server) handleHarvestEvent(w http.ResponseWriter, r *http.Request) {
	var event models.HarvestEvent
	if !decodeBody(w, r, &event) {
		return
	}

	disposition, err := s.productLines.HandleHarvestEvent(r.Context(), &event)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, disposition)
}

// handleDownloadScene activates the scene in the catalog and
// redirects the caller to the GeoTIFF download location.
func (s *Server) handleDownloadScene(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")
	downloadURL, err := s.catalog.Activate(r.Context(), sceneID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	http.Redirect(w, r, downloadURL, http.StatusFound)
}

// handleWMS proxies map tile requests to GeoServer so the UI never
// needs GeoServer credentials.
func (s *Server) handleWMS(w http.ResponseWriter, r *http.Request) {
	if err := s.wms.ProxyWMSTile(w, r); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("WMS proxy request failed")
		respondError(w, http.StatusBadGateway, "upstream_unreachable", "The rendering service is unreachable")
	}
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	algorithms, err := s.algorithms.ListAll(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	serialized := make([]map[string]interface{}, 0, len(algorithms))
	for i := range algorithms {
		serialized = append(serialized, algorithms[i].Serialize())
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"algorithms": serialized})
}

func (s *Server) handleGetAlgorithm(w http.ResponseWriter, r *http.Request) {
	algorithm, err := s.algorithms.Get(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"algorithm": algorithm.Serialize()})
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if parsed, err := time.Parse("2006-01-02", raw); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, raw)
}
