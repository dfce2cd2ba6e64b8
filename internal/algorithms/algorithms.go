// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package algorithms exposes the detection algorithms registered with
// the Piazza service registry.
package algorithms

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/piazza"
)

// Algorithms are discovered by naming convention in the registry.
const servicePattern = "^BF_Algo_"

// ErrNotFound indicates no algorithm exists with the given ID.
var ErrNotFound = errors.New("algorithms: algorithm not found")

// Service resolves algorithm metadata from the gateway registry.
type Service struct {
	gateway piazza.Gateway
}

// NewService creates the algorithm registry service.
func NewService(gateway piazza.Gateway) *Service {
	return &Service{gateway: gateway}
}

// Get retrieves a single algorithm by its service ID.
func (s *Service) Get(ctx context.Context, serviceID string) (*models.Algorithm, error) {
	service, err := s.gateway.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, piazza.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch algorithm %q: %w", serviceID, err)
	}
	return toAlgorithm(service), nil
}

// ListAll lists every registered detection algorithm.
func (s *Service) ListAll(ctx context.Context) ([]models.Algorithm, error) {
	services, err := s.gateway.GetServices(ctx, servicePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list algorithms: %w", err)
	}

	algorithms := make([]models.Algorithm, 0, len(services))
	for i := range services {
		algorithms = append(algorithms, *toAlgorithm(&services[i]))
	}
	return algorithms, nil
}

// toAlgorithm maps a registry service onto the algorithm model. The
// registry carries interface and cloud cover limits as free-form
// metadata strings.
func toAlgorithm(service *piazza.Service) *models.Algorithm {
	maxCloudCover := 10
	if raw, ok := service.Metadata["maxCloudCover"]; ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			logging.Warn().Str("service_id", service.ServiceID).Str("value", raw).Msg("Algorithm has unparseable maxCloudCover metadata")
		} else {
			maxCloudCover = parsed
		}
	}

	return &models.Algorithm{
		ServiceID:     service.ServiceID,
		Name:          service.Name,
		Description:   service.Description,
		Interface:     service.Metadata["interface"],
		MaxCloudCover: maxCloudCover,
		Version:       service.Metadata["version"],
	}
}
