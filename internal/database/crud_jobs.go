// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/models"
)

const jobColumns = `j.job_id, j.algorithm_id, j.algorithm_name, j.created_by, j.created_on,
	j.name, j.scene_id, j.status, j.min_x, j.min_y, j.max_x, j.max_y,
	j.piazza_job_id, j.detections_data_id, COALESCE(e.error_message, '')`

const jobFrom = ` FROM jobs j LEFT JOIN job_errors e ON e.job_id = j.job_id`

// InsertJob persists a new job and records the creating user as a
// tracker of it.
func (db *DB) InsertJob(ctx context.Context, job *models.Job) error {
	start := time.Now()
	if job.CreatedOn.IsZero() {
		job.CreatedOn = time.Now().UTC()
	}

	query := `INSERT INTO jobs (
		job_id, algorithm_id, algorithm_name, created_by, created_on,
		name, scene_id, status, min_x, min_y, max_x, max_y,
		piazza_job_id, detections_data_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		job.JobID, job.AlgorithmID, job.AlgorithmName, job.CreatedBy, job.CreatedOn,
		job.Name, job.SceneID, job.Status,
		job.BBox.MinX, job.BBox.MinY, job.BBox.MaxX, job.BBox.MaxY,
		job.PiazzaJobID, job.DetectionsDataID,
	)
	metrics.RecordDBQuery("insert", "jobs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return db.AddJobUser(ctx, job.JobID, job.CreatedBy)
}

// GetJob retrieves a job by ID.
func (db *DB) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	start := time.Now()
	query := `SELECT ` + jobColumns + jobFrom + ` WHERE j.job_id = ?`
	job, err := scanJobRow(db.conn.QueryRowContext(ctx, query, jobID))
	metrics.RecordDBQuery("select", "jobs", time.Since(start), ignoreNotFound(err))
	return job, err
}

// GetJobsForUser lists all jobs the user is tracking, newest first.
func (db *DB) GetJobsForUser(ctx context.Context, userID string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + jobFrom + `
		JOIN jobs_users u ON u.job_id = j.job_id
		WHERE u.user_id = ?
		ORDER BY j.created_on DESC`
	return db.queryJobs(ctx, query, userID)
}

// GetJobsForProductLine lists jobs linked to a product line, optionally
// restricted to those created after the given time. Zero since means no
// restriction.
func (db *DB) GetJobsForProductLine(ctx context.Context, productLineID string, since time.Time) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + jobFrom + `
		JOIN productline_jobs p ON p.job_id = j.job_id
		WHERE p.productline_id = ?`
	args := []any{productLineID}
	if !since.IsZero() {
		query += ` AND j.created_on > ?`
		args = append(args, since)
	}
	query += ` ORDER BY j.created_on DESC`
	return db.queryJobs(ctx, query, args...)
}

// GetJobsForScene lists all jobs run against the given scene.
func (db *DB) GetJobsForScene(ctx context.Context, sceneID string) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + jobFrom + ` WHERE j.scene_id = ? ORDER BY j.created_on DESC`
	return db.queryJobs(ctx, query, sceneID)
}

// GetOutstandingJobs lists jobs that still need status resolution,
// oldest first so long-running jobs time out promptly.
func (db *DB) GetOutstandingJobs(ctx context.Context) ([]models.Job, error) {
	query := `SELECT ` + jobColumns + jobFrom + `
		WHERE j.status IN (?, ?)
		ORDER BY j.created_on ASC`
	return db.queryJobs(ctx, query, models.JobStatusSubmitted, models.JobStatusRunning)
}

// FindJobIDForScene returns the ID of the existing job for the given
// (scene, algorithm) pair, or ErrNotFound. Used by the harvest
// reconciler to avoid duplicate detection work.
func (db *DB) FindJobIDForScene(ctx context.Context, sceneID, algorithmID string) (string, error) {
	start := time.Now()
	query := `SELECT job_id FROM jobs WHERE scene_id = ? AND algorithm_id = ? LIMIT 1`
	var jobID string
	err := db.conn.QueryRowContext(ctx, query, sceneID, algorithmID).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("select", "jobs", time.Since(start), nil)
		return "", ErrNotFound
	}
	metrics.RecordDBQuery("select", "jobs", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("failed to look up job for scene: %w", err)
	}
	return jobID, nil
}

// AddJobUser records that a user tracks a job. Idempotent.
func (db *DB) AddJobUser(ctx context.Context, jobID, userID string) error {
	start := time.Now()
	query := `INSERT INTO jobs_users (job_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	_, err := db.conn.ExecContext(ctx, query, jobID, userID)
	metrics.RecordDBQuery("insert", "jobs_users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to add job tracker: %w", err)
	}
	return nil
}

// RemoveJobUser stops a user tracking a job. Returns ErrNotFound when
// the user was not tracking it.
func (db *DB) RemoveJobUser(ctx context.Context, jobID, userID string) error {
	start := time.Now()
	query := `DELETE FROM jobs_users WHERE job_id = ? AND user_id = ?`
	result, err := db.conn.ExecContext(ctx, query, jobID, userID)
	metrics.RecordDBQuery("delete", "jobs_users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to remove job tracker: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus transitions a job to a new status. The detections
// data ID is recorded for successful jobs; the error message and
// execution step are recorded for failed ones.
func (db *DB) UpdateJobStatus(ctx context.Context, jobID, status, detectionsDataID, errorMessage, executionStep string) error {
	start := time.Now()
	query := `UPDATE jobs SET status = ?, detections_data_id = ? WHERE job_id = ?`
	result, err := db.conn.ExecContext(ctx, query, status, detectionsDataID, jobID)
	metrics.RecordDBQuery("update", "jobs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if errorMessage != "" {
		query = `INSERT INTO job_errors (job_id, error_message, execution_step) VALUES (?, ?, ?)
			ON CONFLICT (job_id) DO UPDATE SET error_message = excluded.error_message,
			execution_step = excluded.execution_step`
		if _, err := db.conn.ExecContext(ctx, query, jobID, errorMessage, executionStep); err != nil {
			return fmt.Errorf("failed to record job error: %w", err)
		}
	}
	return nil
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "jobs", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer closeWithLog(rows, "job rows")

	jobs := make([]models.Job, 0)
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.JobID, &job.AlgorithmID, &job.AlgorithmName, &job.CreatedBy, &job.CreatedOn,
			&job.Name, &job.SceneID, &job.Status,
			&job.BBox.MinX, &job.BBox.MinY, &job.BBox.MaxX, &job.BBox.MaxY,
			&job.PiazzaJobID, &job.DetectionsDataID, &job.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

func scanJobRow(row *sql.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.JobID, &job.AlgorithmID, &job.AlgorithmName, &job.CreatedBy, &job.CreatedOn,
		&job.Name, &job.SceneID, &job.Status,
		&job.BBox.MinX, &job.BBox.MinY, &job.BBox.MaxX, &job.BBox.MaxY,
		&job.PiazzaJobID, &job.DetectionsDataID, &job.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}
