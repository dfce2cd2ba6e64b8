// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/venicegeo/bf-api/internal/algorithms"
	"github.com/venicegeo/bf-api/internal/geoaxis"
	"github.com/venicegeo/bf-api/internal/jobs"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
	"github.com/venicegeo/bf-api/internal/productlines"
	"github.com/venicegeo/bf-api/internal/scenes"
	"github.com/venicegeo/bf-api/internal/users"
	"github.com/venicegeo/bf-api/internal/validation"
)

// respondJSON writes a JSON payload with the given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Err(err).Msg("Cannot encode response")
	}
}

// respondError writes the standard error envelope.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}

// respondValidationError writes a 400 carrying the per-field details.
func respondValidationError(w http.ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	respondJSON(w, http.StatusBadRequest, models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// respondDomainError maps service errors onto HTTP statuses. Upstream
// outages surface as 502/503 so callers can tell "retry later" apart
// from "fix the request".
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, algorithms.ErrNotFound):
		respondError(w, http.StatusNotFound, "algorithm_not_found", "Algorithm not found")
	case errors.Is(err, jobs.ErrNotFound):
		respondError(w, http.StatusNotFound, "job_not_found", "Job not found")
	case errors.Is(err, productlines.ErrNotFound):
		respondError(w, http.StatusNotFound, "productline_not_found", "Product line not found")
	case errors.Is(err, scenes.ErrNotFound):
		respondError(w, http.StatusNotFound, "scene_not_found", "Scene not found")
	case errors.Is(err, users.ErrNotFound):
		respondError(w, http.StatusNotFound, "user_not_found", "User not found")
	case errors.Is(err, productlines.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission_denied", "You do not own this product line")
	case errors.Is(err, productlines.ErrUntrustedEvent):
		respondError(w, http.StatusUnauthorized, "untrusted_event", "Event signature is not valid")
	case errors.Is(err, users.ErrMalformedAPIKey), errors.Is(err, users.ErrUnauthorized),
		errors.Is(err, geoaxis.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized", "Credentials are not valid")
	case errors.Is(err, jobs.ErrSceneTooCloudy):
		respondError(w, http.StatusBadRequest, "scene_too_cloudy", "Scene exceeds the algorithm's cloud cover threshold")
	case errors.Is(err, jobs.ErrDetectionsNotReady):
		respondError(w, http.StatusNotFound, "detections_not_ready", "Job has not produced detections yet")
	case errors.Is(err, scenes.ErrNotActivatable):
		respondError(w, http.StatusBadRequest, "scene_not_activatable", "Scene has no downloadable GeoTIFF")
	case errors.Is(err, piazza.ErrUnreachable),
		errors.Is(err, scenes.ErrUnreachable),
		errors.Is(err, geoaxis.ErrUnreachable):
		logging.Ctx(r.Context()).Err(err).Msg("Upstream service is unreachable")
		respondError(w, http.StatusBadGateway, "upstream_unreachable", "An upstream service is unreachable")
	default:
		logging.Ctx(r.Context()).Err(err).Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "An internal error prevented fulfillment of the request")
	}
}

// decodeBody unmarshals a JSON request body, rejecting unknown
// payloads with a 400.
func decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "malformed_body", "Request body is not valid JSON")
		return false
	}
	if verr := validation.ValidateStruct(dest); verr != nil {
		respondValidationError(w, verr)
		return false
	}
	return true
}
