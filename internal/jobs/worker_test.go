// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
)

func setupWorker(t *testing.T) (*Worker, *database.DB, *fakeGateway) {
	t.Helper()

	db := setupTestDB(t)
	gateway := newFakeGateway()
	worker := NewWorker(db, gateway, &config.WorkerConfig{
		Interval:          time.Minute,
		JobTTL:            time.Hour,
		MaxPollsPerSecond: 1000,
	})
	return worker, db, gateway
}

func insertOutstandingJob(t *testing.T, db *database.DB, piazzaJobID string, age time.Duration) *models.Job {
	t.Helper()

	job := &models.Job{
		JobID:         uuid.New().String(),
		AlgorithmID:   "svc-shoreline",
		AlgorithmName: "Shoreline Detection",
		CreatedBy:     "alice",
		CreatedOn:     time.Now().UTC().Add(-age),
		Name:          "TEST/SCENE",
		SceneID:       "landsat:LC80120442026121LGN00",
		Status:        models.JobStatusSubmitted,
		BBox:          models.BBox{MinX: -1, MinY: -1, MaxX: 1, MaxY: 1},
		PiazzaJobID:   piazzaJobID,
	}
	if err := db.InsertJob(context.Background(), job); err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}
	return job
}

func TestWorkerResolvesSuccess(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.jobStatuses["pz-1"] = &piazza.JobStatus{Status: piazza.StatusSuccess, DataID: "data-42"}

	worker.runCycle(context.Background())

	updated, err := db.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if updated.Status != models.JobStatusSuccess {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusSuccess)
	}
	if updated.DetectionsDataID != "data-42" {
		t.Errorf("detections data id = %q, want data-42", updated.DetectionsDataID)
	}
}

func TestResolveJobMarksStructTerminal(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.jobStatuses["pz-1"] = &piazza.JobStatus{Status: piazza.StatusCancelled}

	if err := worker.resolveJob(context.Background(), job); err != nil {
		t.Fatalf("resolveJob failed: %v", err)
	}
	if !job.IsTerminal() {
		t.Errorf("expected job to be terminal after resolution, status %q", job.Status)
	}
}

func TestWorkerResolvesError(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.jobStatuses["pz-1"] = &piazza.JobStatus{Status: piazza.StatusError, ErrorMessage: "band math failed"}

	worker.runCycle(context.Background())

	updated, _ := db.GetJob(context.Background(), job.JobID)
	if updated.Status != models.JobStatusError {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusError)
	}
	if updated.ErrorMessage != "band math failed" {
		t.Errorf("error message = %q", updated.ErrorMessage)
	}
}

func TestWorkerMarksRunning(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.jobStatuses["pz-1"] = &piazza.JobStatus{Status: piazza.StatusRunning}

	worker.runCycle(context.Background())

	updated, _ := db.GetJob(context.Background(), job.JobID)
	if updated.Status != models.JobStatusRunning {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusRunning)
	}
}

func TestWorkerLeavesPendingUntouched(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.jobStatuses["pz-1"] = &piazza.JobStatus{Status: piazza.StatusPending}

	worker.runCycle(context.Background())

	updated, _ := db.GetJob(context.Background(), job.JobID)
	if updated.Status != models.JobStatusSubmitted {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusSubmitted)
	}
}

func TestWorkerTimesOutExpiredJobs(t *testing.T) {
	worker, db, gateway := setupWorker(t)

	// Still running upstream but past the TTL.
	stale := insertOutstandingJob(t, db, "pz-stale", 2*time.Hour)
	gateway.jobStatuses["pz-stale"] = &piazza.JobStatus{Status: piazza.StatusRunning}

	// Unknown to the gateway and past the TTL.
	lost := insertOutstandingJob(t, db, "pz-lost", 2*time.Hour)

	worker.runCycle(context.Background())

	for _, job := range []*models.Job{stale, lost} {
		updated, _ := db.GetJob(context.Background(), job.JobID)
		if updated.Status != models.JobStatusTimedOut {
			t.Errorf("job %s status = %q, want %q", job.PiazzaJobID, updated.Status, models.JobStatusTimedOut)
		}
		if updated.ErrorMessage == "" {
			t.Errorf("job %s has no timeout message", job.PiazzaJobID)
		}
	}
}

func TestWorkerRetriesUnreachableGateway(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	gateway.statusErr = errors.New("connection refused")

	worker.runCycle(context.Background())

	// A fresh job survives a gateway outage untouched.
	updated, _ := db.GetJob(context.Background(), job.JobID)
	if updated.Status != models.JobStatusSubmitted {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusSubmitted)
	}
}

func TestWorkerSkipsTerminalJobs(t *testing.T) {
	worker, db, gateway := setupWorker(t)
	job := insertOutstandingJob(t, db, "pz-1", time.Minute)
	if err := db.UpdateJobStatus(context.Background(), job.JobID, models.JobStatusSuccess, "data-1", "", ""); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}

	worker.runCycle(context.Background())

	if gateway.statusCalls != 0 {
		t.Errorf("worker polled %d terminal jobs", gateway.statusCalls)
	}
}

func TestWorkerServeStopsOnCancel(t *testing.T) {
	worker, _, _ := setupWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancellation")
	}
}

func TestWorkerString(t *testing.T) {
	worker, _, _ := setupWorker(t)
	if worker.String() != "job-worker" {
		t.Errorf("String() = %q", worker.String())
	}
}
