// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package database

import (
	"context"
	"fmt"
	"time"
)

// Tables:
//   - users: accounts provisioned via GeoAxis or the temporary login,
//     keyed by the GeoAxis distinguished name, each with an API key
//   - scenes: imagery catalog entries cached from the scene catalog
//   - jobs: detection tasks, one per (scene, algorithm)
//   - jobs_users: which users track which jobs
//   - productlines: standing detection subscriptions
//   - productline_jobs: link table between product lines and jobs;
//     the UNIQUE constraint makes harvest re-delivery idempotent
//   - job_errors: failure detail for jobs that ended in Error

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id    TEXT PRIMARY KEY,
			user_name  TEXT NOT NULL,
			api_key    TEXT NOT NULL UNIQUE,
			created_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS scenes (
			scene_id    TEXT PRIMARY KEY,
			captured_on TIMESTAMP NOT NULL,
			cloud_cover DOUBLE NOT NULL,
			min_x       DOUBLE NOT NULL,
			min_y       DOUBLE NOT NULL,
			max_x       DOUBLE NOT NULL,
			max_y       DOUBLE NOT NULL,
			sensor_name TEXT NOT NULL,
			catalog_uri TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			job_id             TEXT PRIMARY KEY,
			algorithm_id       TEXT NOT NULL,
			algorithm_name     TEXT NOT NULL,
			created_by         TEXT NOT NULL,
			created_on         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			name               TEXT NOT NULL,
			scene_id           TEXT NOT NULL,
			status             TEXT NOT NULL,
			min_x              DOUBLE NOT NULL,
			min_y              DOUBLE NOT NULL,
			max_x              DOUBLE NOT NULL,
			max_y              DOUBLE NOT NULL,
			piazza_job_id      TEXT NOT NULL DEFAULT '',
			detections_data_id TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS jobs_users (
			job_id  TEXT NOT NULL,
			user_id TEXT NOT NULL,
			UNIQUE (job_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS job_errors (
			job_id        TEXT PRIMARY KEY,
			error_message TEXT NOT NULL,
			execution_step TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS productlines (
			productline_id    TEXT PRIMARY KEY,
			algorithm_id      TEXT NOT NULL,
			algorithm_name    TEXT NOT NULL,
			category          TEXT NOT NULL DEFAULT '',
			created_by        TEXT NOT NULL,
			created_on        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			max_cloud_cover   INTEGER NOT NULL,
			min_x             DOUBLE NOT NULL,
			min_y             DOUBLE NOT NULL,
			max_x             DOUBLE NOT NULL,
			max_y             DOUBLE NOT NULL,
			name              TEXT NOT NULL,
			owned_by          TEXT NOT NULL,
			spatial_filter_id TEXT NOT NULL DEFAULT '',
			start_on          DATE NOT NULL,
			stop_on           DATE
		)`,

		`CREATE TABLE IF NOT EXISTS productline_jobs (
			productline_id TEXT NOT NULL,
			job_id         TEXT NOT NULL,
			UNIQUE (productline_id, job_id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return db.createIndexes(ctx)
}

func (db *DB) createIndexes(ctx context.Context) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_jobs_scene ON jobs (scene_id)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_users_user ON jobs_users (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_productline_jobs_pl ON productline_jobs (productline_id)`,
	}
	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
