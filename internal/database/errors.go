// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/venicegeo/bf-api/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey is returned when an insert violates a unique
// constraint, such as two concurrent logins provisioning the same
// account.
var ErrDuplicateKey = errors.New("duplicate key")

// closeQuietly closes a resource and explicitly ignores any error.
// Use this for cleanup in error paths where Close() errors are not
// actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // cleanup is best-effort
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// isUniqueConstraintError reports whether the error is a DuckDB unique
// constraint violation. DuckDB error messages contain "UNIQUE
// constraint" or "Duplicate key".
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "unique constraint") || strings.Contains(errMsg, "duplicate key")
}
