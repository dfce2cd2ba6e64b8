// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/models"
)

// CreateJobRequest is the payload for submitting a detection job.
type CreateJobRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	SceneID     string `json:"scene_id" validate:"required,max=64"`
	AlgorithmID string `json:"algorithm_id" validate:"required,max=64"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	var req CreateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := s.jobs.Create(r.Context(), user.UserID, req.Name, req.SceneID, req.AlgorithmID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("job_id", job.JobID).
		Str("scene_id", job.SceneID).
		Str("algorithm_id", job.AlgorithmID).
		Msg("Job created")
	respondJSON(w, http.StatusCreated, map[string]interface{}{"job": job.Serialize()})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	jobs, err := s.jobs.GetAll(r.Context(), user.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": serializeJobs(jobs)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	job, err := s.jobs.Get(r.Context(), user.UserID, chi.URLParam(r, "jobID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"job": job.Serialize()})
}

func (s *Server) handleForgetJob(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Not logged in")
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if err := s.jobs.Forget(r.Context(), user.UserID, jobID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"forgotten": jobID})
}

// handleGetDetections streams the GeoJSON detections of a successful
// job straight through from Piazza.
func (s *Server) handleGetDetections(w http.ResponseWriter, r *http.Request) {
	detections, err := s.jobs.GetDetections(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.geo+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(detections); err != nil {
		logging.Ctx(r.Context()).Err(err).Msg("Cannot write detections")
	}
}

func (s *Server) handleListJobsByProductLine(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "malformed_since", "Parameter \"since\" must be an RFC 3339 timestamp")
			return
		}
		since = parsed
	}
	jobs, err := s.jobs.GetByProductLine(r.Context(), chi.URLParam(r, "productLineID"), since)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": serializeJobs(jobs)})
}

func (s *Server) handleListJobsByScene(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.GetBySceneID(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": serializeJobs(jobs)})
}

func serializeJobs(jobs []models.Job) models.FeatureCollection {
	features := make([]models.Feature, 0, len(jobs))
	for i := range jobs {
		features = append(features, jobs[i].Serialize())
	}
	return models.NewFeatureCollection(features)
}
