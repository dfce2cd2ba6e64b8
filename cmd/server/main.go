// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package main is the entry point for the Beachfront API server.
//
// Beachfront is a web API backend for geospatial imagery analysis: it
// submits shoreline detection jobs to registered Piazza algorithm
// services, tracks their execution, and reconciles scene harvest
// events against standing product lines.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered loading (defaults, YAML, env)
//  2. Database: embedded DuckDB for jobs, product lines, and users
//  3. Upstream clients: Piazza gateway (circuit breaker wrapped),
//     imagery catalog, GeoAxis OAuth provider, GeoServer
//  4. Provisioning: GeoServer workspace/layer/style and the Piazza
//     harvest-event trigger, both install-if-needed
//  5. Sessions: in-memory or Badger-backed store with signed cookies
//  6. Supervisor tree: job status worker and HTTP server under suture
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests within the
// configured timeout, and closes the database and session store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venicegeo/bf-api/internal/algorithms"
	"github.com/venicegeo/bf-api/internal/api"
	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/geoaxis"
	"github.com/venicegeo/bf-api/internal/geoserver"
	"github.com/venicegeo/bf-api/internal/jobs"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/piazza"
	"github.com/venicegeo/bf-api/internal/productlines"
	"github.com/venicegeo/bf-api/internal/scenes"
	"github.com/venicegeo/bf-api/internal/supervisor"
	"github.com/venicegeo/bf-api/internal/users"
)

// harvestEventEndpoint is the webhook path registered with Piazza.
const harvestEventEndpoint = "/v0/productline/event"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("piazza", cfg.Piazza.Host).
		Str("catalog", cfg.Catalog.Host).
		Msg("Starting Beachfront API")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Upstream clients. The Piazza gateway gets a circuit breaker so a
	// gateway outage fails fast instead of stacking up requests.
	gateway := piazza.NewCircuitBreakerClient(&cfg.Piazza)
	catalog := scenes.NewClient(&cfg.Catalog)
	oauth := geoaxis.NewClient(&cfg.GeoAxis)
	gis := geoserver.NewClient(&cfg.GeoServer)

	// Domain services.
	algorithmService := algorithms.NewService(gateway)
	userService := users.NewService(db, oauth, cfg.GeoAxis.RedirectURI)
	jobService := jobs.NewService(db, gateway, catalog, algorithmService)
	productLineService := productlines.NewService(db, productlines.Options{
		Gateway:      gateway,
		Catalog:      catalog,
		Algorithms:   algorithmService,
		Jobs:         jobService,
		SystemAPIKey: cfg.Piazza.APIKey,
		GatewayAddr:  cfg.Piazza.GatewayAddress(),
		APIBaseURL:   cfg.APIBaseURL(),
		SkipInstall:  cfg.Piazza.SkipInstall,
	})

	// Provision upstream state before accepting traffic. Both calls
	// are idempotent.
	if err := gis.InstallIfNeeded(ctx); err != nil {
		logging.Fatal().Err(err).Msg("GeoServer provisioning failed")
	}
	if err := productLineService.InstallIfNeeded(ctx, harvestEventEndpoint); err != nil {
		logging.Fatal().Err(err).Msg("Piazza trigger installation failed")
	}

	// Sessions.
	sessionStore, err := auth.NewSessionStore(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing session store")
		}
	}()
	cookies, err := auth.NewCookieManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize cookie manager")
	}
	authenticator := auth.NewAuthenticator(userService, sessionStore, cookies, cfg.Security.SessionTTL)

	if cfg.Security.SessionStore == "memory" && cfg.IsProduction() {
		logging.Warn().Msg("Session store is set to 'memory': sessions will be lost on restart. Use SESSION_STORE=badger in production.")
	}
	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED")
	}

	server := api.NewServer(api.Options{
		Config:       cfg,
		Users:        userService,
		Algorithms:   algorithmService,
		Jobs:         jobService,
		ProductLines: productLineService,
		Catalog:      catalog,
		WMS:          gis,
		Auth:         authenticator,
		Sessions:     sessionStore,
		Cookies:      cookies,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddWorkerService(jobs.NewWorker(db, gateway, &cfg.Worker))
	tree.AddWorkerService(supervisor.NewSessionCleanupService(sessionStore, 15*time.Minute))
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))
	logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
