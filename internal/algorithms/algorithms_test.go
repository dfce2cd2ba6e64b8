// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package algorithms

import (
	"context"
	"errors"
	"testing"

	"github.com/venicegeo/bf-api/internal/piazza"
)

type fakeGateway struct {
	piazza.Gateway

	services    []piazza.Service
	serviceByID map[string]*piazza.Service
}

func (f *fakeGateway) GetServices(ctx context.Context, pattern string) ([]piazza.Service, error) {
	return f.services, nil
}

func (f *fakeGateway) GetService(ctx context.Context, serviceID string) (*piazza.Service, error) {
	service, ok := f.serviceByID[serviceID]
	if !ok {
		return nil, piazza.ErrNotFound
	}
	return service, nil
}

func TestGet(t *testing.T) {
	gateway := &fakeGateway{
		serviceByID: map[string]*piazza.Service{
			"svc-1": {
				ServiceID:   "svc-1",
				Name:        "BF_Algo_NDWI",
				Description: "Shoreline detection via NDWI",
				Metadata: map[string]string{
					"interface":     "pzsvc-ndwi",
					"maxCloudCover": "20",
					"version":       "2.1",
				},
			},
		},
	}
	service := NewService(gateway)

	algorithm, err := service.Get(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if algorithm.Name != "BF_Algo_NDWI" {
		t.Errorf("unexpected name %q", algorithm.Name)
	}
	if algorithm.MaxCloudCover != 20 {
		t.Errorf("expected maxCloudCover 20, got %d", algorithm.MaxCloudCover)
	}
	if algorithm.Interface != "pzsvc-ndwi" || algorithm.Version != "2.1" {
		t.Errorf("unexpected metadata mapping: %+v", algorithm)
	}
}

func TestGetNotFound(t *testing.T) {
	service := NewService(&fakeGateway{serviceByID: map[string]*piazza.Service{}})

	_, err := service.Get(context.Background(), "svc-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListAll(t *testing.T) {
	gateway := &fakeGateway{
		services: []piazza.Service{
			{ServiceID: "svc-1", Name: "BF_Algo_NDWI", Metadata: map[string]string{"maxCloudCover": "20"}},
			{ServiceID: "svc-2", Name: "BF_Algo_Otsu", Metadata: map[string]string{}},
		},
	}
	service := NewService(gateway)

	algorithms, err := service.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(algorithms) != 2 {
		t.Fatalf("expected 2 algorithms, got %d", len(algorithms))
	}
	// Missing metadata falls back to the default cloud cover limit
	if algorithms[1].MaxCloudCover != 10 {
		t.Errorf("expected default maxCloudCover 10, got %d", algorithms[1].MaxCloudCover)
	}
}
