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

// InsertUser persists a newly provisioned user.
func (db *DB) InsertUser(ctx context.Context, user *models.User) error {
	start := time.Now()
	if user.CreatedOn.IsZero() {
		user.CreatedOn = time.Now().UTC()
	}

	query := `INSERT INTO users (user_id, user_name, api_key, created_on) VALUES (?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query, user.UserID, user.Name, user.APIKey, user.CreatedOn)
	metrics.RecordDBQuery("insert", "users", time.Since(start), err)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: user %q", ErrDuplicateKey, user.UserID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their distinguished name.
func (db *DB) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	start := time.Now()
	query := `SELECT user_id, user_name, api_key, created_on FROM users WHERE user_id = ?`
	user, err := scanUser(db.conn.QueryRowContext(ctx, query, userID))
	metrics.RecordDBQuery("select", "users", time.Since(start), ignoreNotFound(err))
	return user, err
}

// GetUserByAPIKey retrieves the user that owns the given API key.
func (db *DB) GetUserByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	start := time.Now()
	query := `SELECT user_id, user_name, api_key, created_on FROM users WHERE api_key = ?`
	user, err := scanUser(db.conn.QueryRowContext(ctx, query, apiKey))
	metrics.RecordDBQuery("select", "users", time.Since(start), ignoreNotFound(err))
	return user, err
}

func scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.UserID, &user.Name, &user.APIKey, &user.CreatedOn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}

// ignoreNotFound strips ErrNotFound so routine misses are not counted
// as query errors.
func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
