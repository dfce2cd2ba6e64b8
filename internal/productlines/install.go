// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package productlines

import (
	"context"
	"fmt"
	"strings"

	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/piazza"
)

// harvestBodyTemplate is the payload Piazza delivers to the webhook
// when a new scene is harvested. The $-placeholders are substituted by
// the event broker; the signature is baked in at trigger creation.
const harvestBodyTemplate = `{
	"__signature__": "%s",
	"scene_id": "$imageID",
	"captured_on": "$acquiredDate",
	"cloud_cover": $cloudCover,
	"min_x": $minx,
	"min_y": $miny,
	"max_x": $maxx,
	"max_y": $maxy
}`

// InstallIfNeeded registers the harvest event handler service and its
// trigger with Piazza unless they already exist. The handlerEndpoint
// is the webhook path on this API that receives the events.
func (s *Service) InstallIfNeeded(ctx context.Context, handlerEndpoint string) error {
	if s.skipInstall {
		logging.Info().Msg("Skipping installation of Piazza trigger and service")
		return nil
	}

	logging.Info().Msg("Checking to see if catalog harvest event handlers installation is required")
	pattern := fmt.Sprintf("^%s$", HarvestEventIdentifier)

	needsInstallation := false

	services, err := s.gateway.GetServices(ctx, pattern)
	if err != nil {
		return fmt.Errorf("productlines: cannot list harvest services: %w", err)
	}
	if len(services) == 0 {
		needsInstallation = true
		logging.Info().Msg("Registering harvest event handler with Piazza")
		serviceURL := s.apiBaseURL + "/" + strings.TrimPrefix(handlerEndpoint, "/")
		_, err := s.gateway.RegisterService(ctx,
			HarvestEventIdentifier,
			"Beachfront handler for Scene Harvest Event",
			serviceURL,
			s.apiBaseURL,
		)
		if err != nil {
			return fmt.Errorf("productlines: cannot register harvest service: %w", err)
		}
	}

	triggers, err := s.gateway.GetTriggers(ctx, HarvestEventIdentifier)
	if err != nil {
		return fmt.Errorf("productlines: cannot list harvest triggers: %w", err)
	}
	if len(triggers) == 0 {
		needsInstallation = true
		logging.Info().Msg("Registering harvest event trigger with Piazza")

		eventTypeID, err := s.catalog.GetEventTypeID(ctx)
		if err != nil {
			return fmt.Errorf("productlines: cannot resolve harvest event type: %w", err)
		}
		services, err := s.gateway.GetServices(ctx, pattern)
		if err != nil {
			return fmt.Errorf("productlines: cannot find harvest service: %w", err)
		}
		if len(services) == 0 {
			return fmt.Errorf("productlines: harvest service %q vanished after registration", HarvestEventIdentifier)
		}

		dataInputs := map[string]piazza.DataInput{
			"body": {
				Content:  fmt.Sprintf(harvestBodyTemplate, s.CreateEventSignature()),
				Type:     "body",
				MimeType: "application/json",
			},
		}
		_, err = s.gateway.CreateTrigger(ctx, HarvestEventIdentifier, eventTypeID, services[0].ServiceID, dataInputs)
		if err != nil {
			return fmt.Errorf("productlines: cannot create harvest trigger: %w", err)
		}
	}

	if needsInstallation {
		logging.Info().Msg("Installation complete!")
	} else {
		logging.Info().Msg("Event handlers exist and will not be reinstalled")
	}
	return nil
}
