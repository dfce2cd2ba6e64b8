// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package api wires the HTTP surface of the Beachfront API: routing,
// middleware chain, and request handlers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/venicegeo/bf-api/internal/algorithms"
	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/geoserver"
	"github.com/venicegeo/bf-api/internal/jobs"
	"github.com/venicegeo/bf-api/internal/metrics"
	"github.com/venicegeo/bf-api/internal/middleware"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/productlines"
	"github.com/venicegeo/bf-api/internal/scenes"
	"github.com/venicegeo/bf-api/internal/users"
)

// JobService covers the job lifecycle operations the API exposes.
type JobService interface {
	Create(ctx context.Context, userID, jobName, sceneID, serviceID string) (*models.Job, error)
	Get(ctx context.Context, userID, jobID string) (*models.Job, error)
	GetAll(ctx context.Context, userID string) ([]models.Job, error)
	GetByProductLine(ctx context.Context, productLineID string, since time.Time) ([]models.Job, error)
	GetBySceneID(ctx context.Context, sceneID string) ([]models.Job, error)
	Forget(ctx context.Context, userID, jobID string) error
	GetDetections(ctx context.Context, jobID string) ([]byte, error)
}

// ProductLineService covers product line management and harvest-event
// reconciliation.
type ProductLineService interface {
	Create(ctx context.Context, userID string, params productlines.CreateParams) (*models.ProductLine, error)
	Get(ctx context.Context, productLineID string) (*models.ProductLine, error)
	GetAll(ctx context.Context) ([]models.ProductLine, error)
	Delete(ctx context.Context, userID, productLineID string) error
	HandleHarvestEvent(ctx context.Context, event *models.HarvestEvent) (string, error)
}

// AlgorithmService exposes the Piazza-registered detection algorithms.
type AlgorithmService interface {
	Get(ctx context.Context, serviceID string) (*models.Algorithm, error)
	ListAll(ctx context.Context) ([]models.Algorithm, error)
}

// WMSProxy forwards tile requests to the rendering backend.
type WMSProxy interface {
	ProxyWMSTile(w http.ResponseWriter, r *http.Request) error
}

// Server holds the handler dependencies.
type Server struct {
	cfg          *config.Config
	users        *users.Service
	algorithms   AlgorithmService
	jobs         JobService
	productLines ProductLineService
	catalog      scenes.Catalog
	wms          WMSProxy
	auth         *auth.Authenticator
	sessions     auth.SessionStore
	cookies      *auth.CookieManager
	startedAt    time.Time
}

// Options bundles the Server dependencies.
type Options struct {
	Config       *config.Config
	Users        *users.Service
	Algorithms   AlgorithmService
	Jobs         JobService
	ProductLines ProductLineService
	Catalog      scenes.Catalog
	WMS          WMSProxy
	Auth         *auth.Authenticator
	Sessions     auth.SessionStore
	Cookies      *auth.CookieManager
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	return &Server{
		cfg:          opts.Config,
		users:        opts.Users,
		algorithms:   opts.Algorithms,
		jobs:         opts.Jobs,
		productLines: opts.ProductLines,
		catalog:      opts.Catalog,
		wms:          opts.WMS,
		auth:         opts.Auth,
		sessions:     opts.Sessions,
		cookies:      opts.Cookies,
		startedAt:    time.Now().UTC(),
	}
}

// Router assembles the middleware chain and route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if s.cfg.Security.EnforceHTTPS {
		r.Use(middleware.EnforceHTTPS)
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", auth.CSRFHeaderName},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !s.cfg.Security.RateLimitDisabled {
		r.Use(httprate.Limit(
			s.cfg.Security.RateLimitReqs,
			s.cfg.Security.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
				respondError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
			}),
		))
	}
	r.Use(middleware.PrometheusMetrics)
	r.Use(s.auth.Middleware)
	r.Use(auth.CSRFMiddleware)

	r.Get("/", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/login", s.handleLogin)
	r.Get("/login/geoaxis", s.handleLoginGeoAxis)
	r.Get("/login/callback", s.handleLoginCallback)
	r.Post("/login/temporary_auth", s.handleTemporaryAuth)
	r.Get("/logout", s.handleLogout)

	r.Get("/wms", s.handleWMS)

	r.Route("/v0", func(r chi.Router) {
		r.Get("/user", s.handleGetUser)

		r.Get("/algorithm", s.handleListAlgorithms)
		r.Get("/algorithm/{serviceID}", s.handleGetAlgorithm)

		r.Post("/job", s.handleCreateJob)
		r.Get("/job", s.handleListJobs)
		r.Get("/job/{jobID}", s.handleGetJob)
		r.Delete("/job/{jobID}", s.handleForgetJob)
		r.Get("/job/{jobID}.geojson", s.handleGetDetections)
		r.Get("/job/by_productline/{productLineID}", s.handleListJobsByProductLine)
		r.Get("/job/by_scene/{sceneID}", s.handleListJobsByScene)

		r.Post("/productline", s.handleCreateProductLine)
		r.Get("/productline", s.handleListProductLines)
		r.Delete("/productline/{productLineID}", s.handleDeleteProductLine)
		r.Post("/productline/event", s.handleHarvestEvent)

		r.Get("/scene/{sceneID}.TIF", s.handleDownloadScene)
	})

	return r
}

var (
	_ JobService         = (*jobs.Service)(nil)
	_ ProductLineService = (*productlines.Service)(nil)
	_ AlgorithmService   = (*algorithms.Service)(nil)
	_ WMSProxy           = (*geoserver.Client)(nil)
)

// handleHealth reports liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, models.APIResponse{
		Status: "success",
		Data: map[string]interface{}{
			"uptime": time.Since(s.startedAt).Round(time.Second).String(),
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}
