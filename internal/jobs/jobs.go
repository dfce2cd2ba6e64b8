// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package jobs submits detection jobs to the Piazza gateway, tracks
// their lifecycle in the database, and serves the detection results.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/venicegeo/bf-api/internal/algorithms"
	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
	"github.com/venicegeo/bf-api/internal/scenes"
)

var (
	// ErrNotFound indicates the job does not exist or is not visible
	// to the requesting user.
	ErrNotFound = errors.New("jobs: job not found")

	// ErrSceneTooCloudy indicates the scene's cloud cover exceeds
	// what the selected algorithm will accept.
	ErrSceneTooCloudy = errors.New("jobs: scene exceeds algorithm cloud cover threshold")

	// ErrDetectionsNotReady indicates the job has not produced a
	// detections artifact yet.
	ErrDetectionsNotReady = errors.New("jobs: detections are not ready")
)

// executionInput is the body passed to an algorithm execution. It
// mirrors the payload shape delivered by the harvest event trigger so
// algorithm services see one contract regardless of how the job was
// spawned.
type executionInput struct {
	SceneID    string  `json:"scene_id"`
	CapturedOn string  `json:"captured_on"`
	CloudCover float64 `json:"cloud_cover"`
	MinX       float64 `json:"min_x"`
	MinY       float64 `json:"min_y"`
	MaxX       float64 `json:"max_x"`
	MaxY       float64 `json:"max_y"`
}

// AlgorithmRegistry is the algorithm lookup surface the job service
// needs. Satisfied by *algorithms.Service.
type AlgorithmRegistry interface {
	Get(ctx context.Context, serviceID string) (*models.Algorithm, error)
}

// Service orchestrates job creation and retrieval.
type Service struct {
	db         *database.DB
	gateway    piazza.Gateway
	catalog    scenes.Catalog
	algorithms AlgorithmRegistry
}

// NewService creates a job service.
func NewService(db *database.DB, gateway piazza.Gateway, catalog scenes.Catalog, registry AlgorithmRegistry) *Service {
	return &Service{
		db:         db,
		gateway:    gateway,
		catalog:    catalog,
		algorithms: registry,
	}
}

// Create submits a new detection job to Piazza and persists its row.
// The job is attributed to userID and appears in that user's listing.
func (s *Service) Create(ctx context.Context, userID, jobName, sceneID, serviceID string) (*models.Job, error) {
	algorithm, err := s.algorithms.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	scene, err := s.catalog.Get(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.CloudCover > float64(algorithm.MaxCloudCover) {
		return nil, fmt.Errorf("%w: %.0f%% > %d%%", ErrSceneTooCloudy, scene.CloudCover, algorithm.MaxCloudCover)
	}
	if err := s.db.UpsertScene(ctx, scene); err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().
		Str("scene_id", sceneID).
		Str("algorithm", algorithm.Name).
		Msg("Dispatching scene to algorithm")

	piazzaJobID, err := s.gateway.Execute(ctx, algorithm.ServiceID, executionInputs(scene))
	if err != nil {
		return nil, fmt.Errorf("jobs: execution failed: %w", err)
	}

	job := &models.Job{
		JobID:         uuid.New().String(),
		AlgorithmID:   algorithm.ServiceID,
		AlgorithmName: algorithm.Name,
		CreatedBy:     userID,
		CreatedOn:     time.Now().UTC(),
		Name:          jobName,
		SceneID:       sceneID,
		Status:        models.JobStatusSubmitted,
		BBox:          scene.BBox,
		PiazzaJobID:   piazzaJobID,
	}
	if err := s.db.InsertJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Get retrieves a single job. The requesting user is added to the
// job's watchers so it shows up in their listing from now on.
func (s *Service) Get(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, err := s.db.GetJob(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.db.AddJobUser(ctx, jobID, userID); err != nil {
		return nil, err
	}
	return job, nil
}

// GetAll lists the jobs the user created or has viewed.
func (s *Service) GetAll(ctx context.Context, userID string) ([]models.Job, error) {
	return s.db.GetJobsForUser(ctx, userID)
}

// GetByProductLine lists the jobs spawned by a product line since the
// given cutoff.
func (s *Service) GetByProductLine(ctx context.Context, productLineID string, since time.Time) ([]models.Job, error) {
	return s.db.GetJobsForProductLine(ctx, productLineID, since)
}

// GetBySceneID lists every job run against a scene.
func (s *Service) GetBySceneID(ctx context.Context, sceneID string) ([]models.Job, error) {
	return s.db.GetJobsForScene(ctx, sceneID)
}

// Forget removes a job from the user's listing. The job row itself is
// untouched so other watchers keep their view.
func (s *Service) Forget(ctx context.Context, userID, jobID string) error {
	err := s.db.RemoveJobUser(ctx, jobID, userID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// GetDetections downloads the GeoJSON detections produced by a
// successful job.
func (s *Service) GetDetections(ctx context.Context, jobID string) ([]byte, error) {
	job, err := s.db.GetJob(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusSuccess || job.DetectionsDataID == "" {
		return nil, ErrDetectionsNotReady
	}
	return s.gateway.GetFile(ctx, job.DetectionsDataID)
}

func executionInputs(scene *models.Scene) map[string]piazza.DataInput {
	content, _ := json.Marshal(executionInput{
		SceneID:    scene.SceneID,
		CapturedOn: scene.CapturedOn.UTC().Format(time.RFC3339),
		CloudCover: scene.CloudCover,
		MinX:       scene.BBox.MinX,
		MinY:       scene.BBox.MinY,
		MaxX:       scene.BBox.MaxX,
		MaxY:       scene.BBox.MaxY,
	})
	return map[string]piazza.DataInput{
		"body": {
			Content:  string(content),
			Type:     "body",
			MimeType: "application/json",
		},
	}
}

var _ AlgorithmRegistry = (*algorithms.Service)(nil)
