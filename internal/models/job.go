// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package models

import "time"

// Job status values. Submitted and Running jobs are resolved by the
// background worker; the remaining states are terminal.
const (
	JobStatusSubmitted = "Submitted"
	JobStatusRunning   = "Running"
	JobStatusSuccess   = "Success"
	JobStatusError     = "Error"
	JobStatusTimedOut  = "Timed Out"
	JobStatusCancelled = "Cancelled"
)

// Job is a unit of detection-processing work against one scene with
// one algorithm.
type Job struct {
	JobID         string
	AlgorithmID   string
	AlgorithmName string
	CreatedBy     string
	CreatedOn     time.Time
	Name          string
	SceneID       string
	Status        string
	BBox          BBox

	// PiazzaJobID tracks the execution submitted to the Piazza gateway.
	PiazzaJobID string

	// DetectionsDataID references the GeoJSON detections produced by a
	// successful run.
	DetectionsDataID string

	// ErrorMessage carries the failure detail for Error/Timed Out jobs.
	ErrorMessage string
}

// IsTerminal reports whether the job can no longer change state.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusSuccess, JobStatusError, JobStatusTimedOut, JobStatusCancelled:
		return true
	}
	return false
}

// Serialize converts the job to a GeoJSON Feature.
func (j *Job) Serialize() Feature {
	return Feature{
		Type:     "Feature",
		ID:       j.JobID,
		Geometry: j.BBox.Polygon(),
		Properties: map[string]interface{}{
			"algorithm_id":   j.AlgorithmID,
			"algorithm_name": j.AlgorithmName,
			"created_by":     j.CreatedBy,
			"created_on":     formatTime(&j.CreatedOn),
			"name":           j.Name,
			"scene_id":       j.SceneID,
			"status":         j.Status,
			"type":           "JOB",
		},
	}
}
