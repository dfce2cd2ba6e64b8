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

const productLineColumns = `productline_id, algorithm_id, algorithm_name, category,
	created_by, created_on, max_cloud_cover, min_x, min_y, max_x, max_y,
	name, owned_by, spatial_filter_id, start_on, stop_on`

// InsertProductLine persists a new product line.
func (db *DB) InsertProductLine(ctx context.Context, pl *models.ProductLine) error {
	start := time.Now()
	if pl.CreatedOn.IsZero() {
		pl.CreatedOn = time.Now().UTC()
	}

	query := `INSERT INTO productlines (` + productLineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var stopOn any
	if pl.StopOn != nil {
		stopOn = *pl.StopOn
	}
	_, err := db.conn.ExecContext(ctx, query,
		pl.ProductLineID, pl.AlgorithmID, pl.AlgorithmName, pl.Category,
		pl.CreatedBy, pl.CreatedOn, pl.MaxCloudCover,
		pl.BBox.MinX, pl.BBox.MinY, pl.BBox.MaxX, pl.BBox.MaxY,
		pl.Name, pl.OwnedBy, pl.SpatialFilterID, pl.StartOn, stopOn,
	)
	metrics.RecordDBQuery("insert", "productlines", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to insert product line: %w", err)
	}
	return nil
}

// GetProductLine retrieves a product line by ID.
func (db *DB) GetProductLine(ctx context.Context, productLineID string) (*models.ProductLine, error) {
	start := time.Now()
	query := `SELECT ` + productLineColumns + ` FROM productlines WHERE productline_id = ?`
	row := db.conn.QueryRowContext(ctx, query, productLineID)
	pl, err := scanProductLineRow(row)
	metrics.RecordDBQuery("select", "productlines", time.Since(start), ignoreNotFound(err))
	return pl, err
}

// GetAllProductLines lists every product line, newest first.
func (db *DB) GetAllProductLines(ctx context.Context) ([]models.ProductLine, error) {
	start := time.Now()
	query := `SELECT ` + productLineColumns + ` FROM productlines ORDER BY created_on DESC`
	rows, err := db.conn.QueryContext(ctx, query)
	metrics.RecordDBQuery("select", "productlines", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query product lines: %w", err)
	}
	defer closeWithLog(rows, "product line rows")

	lines := make([]models.ProductLine, 0)
	for rows.Next() {
		pl, err := scanProductLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating product lines: %w", err)
	}
	return lines, nil
}

// DeleteProductLine removes a product line and its job links. Returns
// ErrNotFound when no such product line exists.
func (db *DB) DeleteProductLine(ctx context.Context, productLineID string) error {
	start := time.Now()
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM productlines WHERE productline_id = ?`, productLineID)
	metrics.RecordDBQuery("delete", "productlines", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete product line: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM productline_jobs WHERE productline_id = ?`, productLineID); err != nil {
		return fmt.Errorf("failed to delete product line job links: %w", err)
	}
	return nil
}

// GetCandidateProductLines returns the product lines whose filters
// match a harvested scene: footprint overlap, cloud cover within the
// line's tolerance, and today within the line's date window.
func (db *DB) GetCandidateProductLines(ctx context.Context, bbox models.BBox, cloudCover int, today time.Time) ([]models.ProductLineSummary, error) {
	start := time.Now()
	query := `SELECT productline_id, algorithm_id, name, owned_by
		FROM productlines
		WHERE min_x < ? AND max_x > ?
		  AND min_y < ? AND max_y > ?
		  AND max_cloud_cover >= ?
		  AND start_on <= ?
		  AND (stop_on IS NULL OR stop_on >= ?)
		ORDER BY created_on ASC`

	day := today.UTC().Truncate(24 * time.Hour)
	rows, err := db.conn.QueryContext(ctx, query,
		bbox.MaxX, bbox.MinX, bbox.MaxY, bbox.MinY, cloudCover, day, day)
	metrics.RecordDBQuery("select", "productlines", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate product lines: %w", err)
	}
	defer closeWithLog(rows, "candidate rows")

	candidates := make([]models.ProductLineSummary, 0)
	for rows.Next() {
		var c models.ProductLineSummary
		if err := rows.Scan(&c.ProductLineID, &c.AlgorithmID, &c.Name, &c.OwnedBy); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return candidates, nil
}

// LinkProductLineJob records that a job belongs to a product line.
// Idempotent: re-linking an already linked pair is a no-op, so harvest
// event re-delivery cannot create duplicate links.
func (db *DB) LinkProductLineJob(ctx context.Context, productLineID, jobID string) error {
	start := time.Now()
	query := `INSERT INTO productline_jobs (productline_id, job_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING`
	_, err := db.conn.ExecContext(ctx, query, productLineID, jobID)
	metrics.RecordDBQuery("insert", "productline_jobs", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to link job to product line: %w", err)
	}
	return nil
}

func scanProductLineRow(row *sql.Row) (*models.ProductLine, error) {
	var pl models.ProductLine
	var stopOn sql.NullTime
	err := row.Scan(
		&pl.ProductLineID, &pl.AlgorithmID, &pl.AlgorithmName, &pl.Category,
		&pl.CreatedBy, &pl.CreatedOn, &pl.MaxCloudCover,
		&pl.BBox.MinX, &pl.BBox.MinY, &pl.BBox.MaxX, &pl.BBox.MaxY,
		&pl.Name, &pl.OwnedBy, &pl.SpatialFilterID, &pl.StartOn, &stopOn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product line: %w", err)
	}
	if stopOn.Valid {
		pl.StopOn = &stopOn.Time
	}
	return &pl, nil
}

func scanProductLine(rows *sql.Rows) (*models.ProductLine, error) {
	var pl models.ProductLine
	var stopOn sql.NullTime
	err := rows.Scan(
		&pl.ProductLineID, &pl.AlgorithmID, &pl.AlgorithmName, &pl.Category,
		&pl.CreatedBy, &pl.CreatedOn, &pl.MaxCloudCover,
		&pl.BBox.MinX, &pl.BBox.MinY, &pl.BBox.MaxX, &pl.BBox.MaxY,
		&pl.Name, &pl.OwnedBy, &pl.SpatialFilterID, &pl.StartOn, &stopOn,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan product line: %w", err)
	}
	if stopOn.Valid {
		pl.StopOn = &stopOn.Time
	}
	return &pl, nil
}
