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

// UpsertScene caches a scene catalog entry locally. Re-inserting an
// already cached scene refreshes its metadata.
func (db *DB) UpsertScene(ctx context.Context, scene *models.Scene) error {
	start := time.Now()
	query := `INSERT INTO scenes (
		scene_id, captured_on, cloud_cover, min_x, min_y, max_x, max_y,
		sensor_name, catalog_uri
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (scene_id) DO UPDATE SET
		captured_on = excluded.captured_on,
		cloud_cover = excluded.cloud_cover,
		min_x = excluded.min_x,
		min_y = excluded.min_y,
		max_x = excluded.max_x,
		max_y = excluded.max_y,
		sensor_name = excluded.sensor_name,
		catalog_uri = excluded.catalog_uri`

	_, err := db.conn.ExecContext(ctx, query,
		scene.SceneID, scene.CapturedOn, scene.CloudCover,
		scene.BBox.MinX, scene.BBox.MinY, scene.BBox.MaxX, scene.BBox.MaxY,
		scene.SensorName, scene.GeoTIFFURL,
	)
	metrics.RecordDBQuery("upsert", "scenes", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to upsert scene: %w", err)
	}
	return nil
}

// GetScene retrieves a cached scene by ID.
func (db *DB) GetScene(ctx context.Context, sceneID string) (*models.Scene, error) {
	start := time.Now()
	query := `SELECT scene_id, captured_on, cloud_cover, min_x, min_y, max_x, max_y,
		sensor_name, catalog_uri FROM scenes WHERE scene_id = ?`

	var scene models.Scene
	err := db.conn.QueryRowContext(ctx, query, sceneID).Scan(
		&scene.SceneID, &scene.CapturedOn, &scene.CloudCover,
		&scene.BBox.MinX, &scene.BBox.MinY, &scene.BBox.MaxX, &scene.BBox.MaxY,
		&scene.SensorName, &scene.GeoTIFFURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBQuery("select", "scenes", time.Since(start), nil)
		return nil, ErrNotFound
	}
	metrics.RecordDBQuery("select", "scenes", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan scene: %w", err)
	}
	return &scene, nil
}
