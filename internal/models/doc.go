// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

/*
Package models defines data structures for the Beachfront API.

It contains the database-backed domain models (ProductLine, Job, User,
Scene), the algorithm registry entry, the harvest-event payload, the
GeoJSON serialization helpers, and the standardized API response
envelope. It is the single source of truth for data structure
definitions and has no dependencies on other internal packages.

Domain models serialize to GeoJSON Features: a product line or job is a
Feature whose geometry is its bounding box polygon and whose properties
carry the record fields, so API consumers can hand responses directly
to mapping libraries.
*/
package models
