// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package productlines manages recurring detection subscriptions and
// reconciles incoming harvest events against them.
package productlines

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/jobs"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
	"github.com/venicegeo/bf-api/internal/scenes"
)

// HarvestEventIdentifier names the Piazza service and trigger that
// deliver harvest events back to this API.
const HarvestEventIdentifier = "beachfront:api:on_harvest_event"

var (
	// ErrUntrustedEvent indicates a harvest event whose signature does
	// not match the shared secret. Rejected before any side effect.
	ErrUntrustedEvent = errors.New("productlines: untrusted event")

	// ErrNotFound indicates the product line does not exist.
	ErrNotFound = errors.New("productlines: product line not found")

	// ErrPermissionDenied indicates the acting user does not own the
	// product line.
	ErrPermissionDenied = errors.New("productlines: permission denied")
)

var nonWordRuns = regexp.MustCompile(`\W+`)

// JobCreator is the job-creation collaborator used when a harvest
// event spawns new work. Satisfied by *jobs.Service.
type JobCreator interface {
	Create(ctx context.Context, userID, jobName, sceneID, serviceID string) (*models.Job, error)
}

// AlgorithmRegistry is the algorithm lookup surface used at product
// line creation time.
type AlgorithmRegistry interface {
	Get(ctx context.Context, serviceID string) (*models.Algorithm, error)
}

// CreateParams carries the fields of a new product line.
type CreateParams struct {
	AlgorithmID     string
	BBox            models.BBox
	Category        string
	MaxCloudCover   int
	Name            string
	SpatialFilterID string
	StartOn         time.Time
	StopOn          *time.Time
}

// Service manages product lines and harvest-event reconciliation.
type Service struct {
	db           *database.DB
	gateway      piazza.Gateway
	catalog      scenes.Catalog
	algorithms   AlgorithmRegistry
	jobs         JobCreator
	systemAPIKey string
	gatewayAddr  string
	apiBaseURL   string
	skipInstall  bool
}

// Options configures a product line service.
type Options struct {
	Gateway    piazza.Gateway
	Catalog    scenes.Catalog
	Algorithms AlgorithmRegistry
	Jobs       JobCreator

	// SystemAPIKey and GatewayAddr form the harvest-event trust
	// signature.
	SystemAPIKey string
	GatewayAddr  string

	// APIBaseURL is this API's public base URL, used to build the
	// webhook address registered with Piazza.
	APIBaseURL string

	SkipInstall bool
}

// NewService creates a product line service.
func NewService(db *database.DB, opts Options) *Service {
	return &Service{
		db:           db,
		gateway:      opts.Gateway,
		catalog:      opts.Catalog,
		algorithms:   opts.Algorithms,
		jobs:         opts.Jobs,
		systemAPIKey: opts.SystemAPIKey,
		gatewayAddr:  opts.GatewayAddr,
		apiBaseURL:   opts.APIBaseURL,
		skipInstall:  opts.SkipInstall,
	}
}

// CreateEventSignature derives the shared-secret proof of origin
// attached to harvest events. Events carrying any other value are
// rejected.
func (s *Service) CreateEventSignature() string {
	components := s.systemAPIKey + ":" + s.gatewayAddr
	digest := sha512.Sum384([]byte(components))
	return hex.EncodeToString(digest[:])
}

// Create validates the algorithm and persists a new product line owned
// by userID.
func (s *Service) Create(ctx context.Context, userID string, params CreateParams) (*models.ProductLine, error) {
	algorithm, err := s.algorithms.Get(ctx, params.AlgorithmID)
	if err != nil {
		return nil, err
	}

	pl := &models.ProductLine{
		ProductLineID:   createID(),
		AlgorithmID:     algorithm.ServiceID,
		AlgorithmName:   algorithm.Name,
		BBox:            params.BBox,
		Category:        params.Category,
		CreatedBy:       userID,
		CreatedOn:       time.Now().UTC(),
		MaxCloudCover:   params.MaxCloudCover,
		Name:            params.Name,
		OwnedBy:         userID,
		SpatialFilterID: params.SpatialFilterID,
		StartOn:         params.StartOn,
		StopOn:          params.StopOn,
	}

	logging.Ctx(ctx).Info().Str("productline_id", pl.ProductLineID).Msg("Creating product line")
	if err := s.db.InsertProductLine(ctx, pl); err != nil {
		return nil, err
	}
	return pl, nil
}

// Get retrieves one product line.
func (s *Service) Get(ctx context.Context, productLineID string) (*models.ProductLine, error) {
	pl, err := s.db.GetProductLine(ctx, productLineID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return pl, err
}

// GetAll lists every product line.
func (s *Service) GetAll(ctx context.Context) ([]models.ProductLine, error) {
	return s.db.GetAllProductLines(ctx)
}

// Delete removes a product line. Only the owner may delete it; its
// spawned jobs are left in place.
func (s *Service) Delete(ctx context.Context, userID, productLineID string) error {
	pl, err := s.db.GetProductLine(ctx, productLineID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if pl.OwnedBy != userID {
		return ErrPermissionDenied
	}
	return s.db.DeleteProductLine(ctx, productLineID)
}

// HandleHarvestEvent reconciles a newly cataloged scene against the
// active product lines. It returns Accept once every interested line
// has a job for the scene, or Disregard when none match. Any candidate
// failure aborts the whole reconciliation so the event source retries
// delivery; the idempotent job lookup and link upsert make the retry
// safe.
func (s *Service) HandleHarvestEvent(ctx context.Context, event *models.HarvestEvent) (string, error) {
	// Fail fast if the event is untrusted.
	if event.Signature != s.CreateEventSignature() {
		metrics.RecordHarvestEvent("untrusted")
		return "", ErrUntrustedEvent
	}

	log := logging.Ctx(ctx)
	candidates, err := s.db.GetCandidateProductLines(ctx, event.BBox(), event.CloudCover, time.Now())
	if err != nil {
		log.Err(err).Msg("Database search for applicable product lines failed")
		return "", err
	}

	log.Info().
		Str("scene_id", event.SceneID).
		Int("count", len(candidates)).
		Msg("Found applicable product lines")

	if len(candidates) == 0 {
		metrics.RecordHarvestEvent("disregard")
		return models.HarvestDisregard, nil
	}

	for _, candidate := range candidates {
		if err := s.reconcile(ctx, &candidate, event.SceneID); err != nil {
			metrics.RecordHarvestEvent("error")
			return "", err
		}
	}

	metrics.RecordHarvestEvent("accept")
	return models.HarvestAccept, nil
}

// reconcile ensures one product line has a job for the scene, creating
// at most one job per (scene, algorithm) pair across all lines.
func (s *Service) reconcile(ctx context.Context, candidate *models.ProductLineSummary, sceneID string) error {
	log := logging.Ctx(ctx)

	existingJobID, err := s.db.FindJobIDForScene(ctx, sceneID, candidate.AlgorithmID)
	if err == nil {
		metrics.HarvestJobsLinked.Inc()
		log.Info().
			Str("productline_id", candidate.ProductLineID).
			Str("job_id", existingJobID).
			Msg("Linking to existing job")
		return s.db.LinkProductLineJob(ctx, candidate.ProductLineID, existingJobID)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return err
	}

	log.Info().
		Str("scene_id", sceneID).
		Str("productline_id", candidate.ProductLineID).
		Msg("Spawning job in product line")

	// The job is submitted with the system credential but attributed
	// to the product line's owner.
	job, err := s.jobs.Create(ctx, candidate.OwnedBy, createJobName(candidate.Name, sceneID), sceneID, candidate.AlgorithmID)
	if err != nil {
		return fmt.Errorf("productlines: cannot spawn job: %w", err)
	}
	metrics.HarvestJobsSpawned.Inc()
	return s.db.LinkProductLineJob(ctx, candidate.ProductLineID, job.JobID)
}

// createID generates a 16-character lowercase product line identifier.
func createID() string {
	letters := make([]byte, 16)
	for i := range letters {
		letters[i] = byte('a' + rand.Intn(26))
	}
	return string(letters)
}

// createJobName synthesizes a human-readable job name from the product
// line name and the scene ID.
func createJobName(productLineName, sceneID string) string {
	name := nonWordRuns.ReplaceAllString(productLineName, "_")
	if len(name) > 32 {
		name = name[:32]
	}
	scene := strings.TrimPrefix(sceneID, "landsat:")
	return strings.ToUpper(name + "/" + scene)
}

var _ JobCreator = (*jobs.Service)(nil)
