// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/venicegeo/bf-api/internal/auth"
	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/database"
	"github.com/venicegeo/bf-api/internal/jobs"
	"github.com/venicegeo/bf-api/internal/models"
	"github.com/venicegeo/bf-api/internal/productlines"
	"github.com/venicegeo/bf-api/internal/scenes"
	"github.com/venicegeo/bf-api/internal/users"
)

const testAPIKey = "0123456789abcdef0123456789abcdef"

type fakeJobs struct {
	jobs       map[string]*models.Job
	detections map[string][]byte
	createErr  error
	created    []string
}

func (f *fakeJobs) Create(ctx context.Context, userID, jobName, sceneID, serviceID string) (*models.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	job := &models.Job{
		JobID:       "job-" + jobName,
		AlgorithmID: serviceID,
		CreatedBy:   userID,
		CreatedOn:   time.Now().UTC(),
		Name:        jobName,
		SceneID:     sceneID,
		Status:      models.JobStatusSubmitted,
	}
	f.created = append(f.created, job.JobID)
	return job, nil
}

func (f *fakeJobs) Get(ctx context.Context, userID, jobID string) (*models.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) GetAll(ctx context.Context, userID string) ([]models.Job, error) {
	var out []models.Job
	for _, job := range f.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (f *fakeJobs) GetByProductLine(ctx context.Context, productLineID string, since time.Time) ([]models.Job, error) {
	return nil, nil
}

func (f *fakeJobs) GetBySceneID(ctx context.Context, sceneID string) ([]models.Job, error) {
	return nil, nil
}

func (f *fakeJobs) Forget(ctx context.Context, userID, jobID string) error {
	if _, ok := f.jobs[jobID]; !ok {
		return jobs.ErrNotFound
	}
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeJobs) GetDetections(ctx context.Context, jobID string) ([]byte, error) {
	detections, ok := f.detections[jobID]
	if !ok {
		return nil, jobs.ErrDetectionsNotReady
	}
	return detections, nil
}

type fakeProductLines struct {
	lines       map[string]*models.ProductLine
	disposition string
	harvestErr  error
	deleteErr   error
}

func (f *fakeProductLines) Create(ctx context.Context, userID string, params productlines.CreateParams) (*models.ProductLine, error) {
	line := &models.ProductLine{
		ProductLineID: "abcdefghijklmnop",
		AlgorithmID:   params.AlgorithmID,
		BBox:          params.BBox,
		CreatedBy:     userID,
		CreatedOn:     time.Now().UTC(),
		MaxCloudCover: params.MaxCloudCover,
		Name:          params.Name,
		OwnedBy:       userID,
		StartOn:       params.StartOn,
		StopOn:        params.StopOn,
	}
	f.lines[line.ProductLineID] = line
	return line, nil
}

func (f *fakeProductLines) Get(ctx context.Context, productLineID string) (*models.ProductLine, error) {
	line, ok := f.lines[productLineID]
	if !ok {
		return nil, productlines.ErrNotFound
	}
	return line, nil
}

func (f *fakeProductLines) GetAll(ctx context.Context) ([]models.ProductLine, error) {
	var out []models.ProductLine
	for _, line := range f.lines {
		out = append(out, *line)
	}
	return out, nil
}

func (f *fakeProductLines) Delete(ctx context.Context, userID, productLineID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.lines[productLineID]; !ok {
		return productlines.ErrNotFound
	}
	delete(f.lines, productLineID)
	return nil
}

func (f *fakeProductLines) HandleHarvestEvent(ctx context.Context, event *models.HarvestEvent) (string, error) {
	if f.harvestErr != nil {
		return "", f.harvestErr
	}
	return f.disposition, nil
}

type fakeAlgorithms struct {
	algorithms map[string]*models.Algorithm
}

func (f *fakeAlgorithms) Get(ctx context.Context, serviceID string) (*models.Algorithm, error) {
	algorithm, ok := f.algorithms[serviceID]
	if !ok {
		return nil, errors.New("not found")
	}
	return algorithm, nil
}

func (f *fakeAlgorithms) ListAll(ctx context.Context) ([]models.Algorithm, error) {
	var out []models.Algorithm
	for _, algorithm := range f.algorithms {
		out = append(out, *algorithm)
	}
	return out, nil
}

type fakeCatalog struct {
	downloadURLs map[string]string
}

func (f *fakeCatalog) Get(ctx context.Context, sceneID string) (*models.Scene, error) {
	return nil, scenes.ErrNotFound
}

func (f *fakeCatalog) Activate(ctx context.Context, sceneID string) (string, error) {
	downloadURL, ok := f.downloadURLs[sceneID]
	if !ok {
		return "", scenes.ErrNotFound
	}
	return downloadURL, nil
}

func (f *fakeCatalog) GetEventTypeID(ctx context.Context) (string, error) {
	return "eventtype-123", nil
}

type fakeWMS struct {
	err error
}

func (f *fakeWMS) ProxyWMSTile(w http.ResponseWriter, r *http.Request) error {
	if f.err != nil {
		return f.err
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write([]byte("tile"))
	return nil
}

type testHarness struct {
	server       *Server
	router       http.Handler
	jobs         *fakeJobs
	productLines *fakeProductLines
	wms          *fakeWMS
}

func setupServer(t *testing.T) *testHarness {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InsertUser(context.Background(), &models.User{
		UserID: "alice",
		Name:   "Alice",
		APIKey: testAPIKey,
	}); err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}

	cfg := &config.Config{
		Security: config.SecurityConfig{
			SessionSecret:     strings.Repeat("s", 32),
			SessionTTL:        30 * time.Minute,
			RateLimitDisabled: true,
		},
	}

	userService := users.NewService(db, nil, "")
	store := auth.NewMemorySessionStore()
	t.Cleanup(func() { _ = store.Close() })
	cookies, err := auth.NewCookieManager(&cfg.Security)
	if err != nil {
		t.Fatalf("NewCookieManager failed: %v", err)
	}
	authenticator := auth.NewAuthenticator(userService, store, cookies, cfg.Security.SessionTTL)

	fakeJobService := &fakeJobs{
		jobs:       map[string]*models.Job{},
		detections: map[string][]byte{},
	}
	fakeProductLineService := &fakeProductLines{
		lines:       map[string]*models.ProductLine{},
		disposition: "Accept",
	}
	wms := &fakeWMS{}

	server := NewServer(Options{
		Config: cfg,
		Users:  userService,
		Algorithms: &fakeAlgorithms{algorithms: map[string]*models.Algorithm{
			"svc-shoreline": {
				ServiceID:     "svc-shoreline",
				Name:          "Shoreline Detection",
				Interface:     "pzsvc-ndwi-py",
				MaxCloudCover: 10,
				Version:       "1.0",
			},
		}},
		Jobs:         fakeJobService,
		ProductLines: fakeProductLineService,
		Catalog: &fakeCatalog{downloadURLs: map[string]string{
			"landsat:LC80120442026121LGN00": "https://imagery.example.com/LC80120442026121LGN00.TIF",
		}},
		WMS:      wms,
		Auth:     authenticator,
		Sessions: store,
		Cookies:  cookies,
	})

	return &testHarness{
		server:       server,
		router:       server.Router(),
		jobs:         fakeJobService,
		productLines: fakeProductLineService,
		wms:          wms,
	}
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(testAPIKey, "")
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return payload
}

func TestHealthEndpointIsPublic(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["status"] != "success" {
		t.Errorf("expected success status, got %v", payload["status"])
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	h := setupServer(t)

	for _, target := range []string{"/v0/user", "/v0/job", "/v0/algorithm", "/v0/productline"} {
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s: expected 401, got %d", target, rec.Code)
		}
	}
}

func TestGetUserReturnsProfile(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/user", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["user_id"] != "alice" {
		t.Errorf("expected user alice, got %v", payload["user_id"])
	}
	if payload["api_key"] != testAPIKey {
		t.Errorf("expected the API key in the profile, got %v", payload["api_key"])
	}
}

func TestCreateJob(t *testing.T) {
	h := setupServer(t)

	body := `{"name": "NILE_DELTA", "scene_id": "landsat:LC80120442026121LGN00", "algorithm_id": "svc-shoreline"}`
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v0/job", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	job, ok := payload["job"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a job feature, got %v", payload)
	}
	if job["type"] != "Feature" {
		t.Errorf("expected GeoJSON feature, got %v", job["type"])
	}
	if len(h.jobs.created) != 1 {
		t.Errorf("expected 1 created job, got %d", len(h.jobs.created))
	}
}

func TestCreateJobValidation(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v0/job", `{"name": "NO_SCENE"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(h.jobs.created) != 0 {
		t.Errorf("expected no created jobs, got %d", len(h.jobs.created))
	}
}

func TestCreateJobMapsCloudyScene(t *testing.T) {
	h := setupServer(t)
	h.jobs.createErr = jobs.ErrSceneTooCloudy

	body := `{"name": "CLOUDY", "scene_id": "landsat:cloudy", "algorithm_id": "svc-shoreline"}`
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v0/job", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	apiError, _ := payload["error"].(map[string]interface{})
	if apiError["code"] != "scene_too_cloudy" {
		t.Errorf("expected scene_too_cloudy, got %v", apiError["code"])
	}
}

func TestGetJobNotFound(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/job/nope", ""))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListJobsReturnsFeatureCollection(t *testing.T) {
	h := setupServer(t)
	h.jobs.jobs["job-1"] = &models.Job{JobID: "job-1", Status: models.JobStatusSuccess}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/job", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	collection, ok := payload["jobs"].(map[string]interface{})
	if !ok || collection["type"] != "FeatureCollection" {
		t.Fatalf("expected a FeatureCollection, got %v", payload["jobs"])
	}
}

func TestGetDetections(t *testing.T) {
	h := setupServer(t)
	h.jobs.detections["job-1"] = []byte(`{"type": "FeatureCollection", "features": []}`)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/job/job-1.geojson", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/job/job-2.geojson", ""))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unresolved job, got %d", rec.Code)
	}
}

func TestCreateProductLine(t *testing.T) {
	h := setupServer(t)

	body := `{
		"algorithm_id": "svc-shoreline",
		"category": "coastal",
		"max_cloud_cover": 40,
		"min_x": -82, "min_y": 24, "max_x": -79, "max_y": 26,
		"name": "Florida Coast",
		"start_on": "2026-08-01"
	}`
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v0/productline", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	feature, ok := payload["productline"].(map[string]interface{})
	if !ok || feature["type"] != "Feature" {
		t.Fatalf("expected a product line feature, got %v", payload)
	}
}

func TestCreateProductLineRejectsBadDate(t *testing.T) {
	h := setupServer(t)

	body := `{"algorithm_id": "svc-shoreline", "name": "Bad Dates", "start_on": "yesterday"}`
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodPost, "/v0/productline", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteProductLineMapsPermissionDenied(t *testing.T) {
	h := setupServer(t)
	h.productLines.deleteErr = productlines.ErrPermissionDenied

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/v0/productline/abcdefghijklmnop", ""))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHarvestEventEndpointIsPublic(t *testing.T) {
	h := setupServer(t)

	body := `{
		"scene_id": "landsat:LC80120442026121LGN00",
		"__signature__": "` + strings.Repeat("ab", 48) + `",
		"captured_on": "2026-05-01T10:30:00Z",
		"cloud_cover": 5,
		"min_x": -81, "min_y": 24.5, "max_x": -80, "max_y": 25.5
	}`
	req := httptest.NewRequest(http.MethodPost, "/v0/productline/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "Accept" {
		t.Errorf("expected plain Accept, got %q", rec.Body.String())
	}
}

func TestHarvestEventMapsUntrustedTo401(t *testing.T) {
	h := setupServer(t)
	h.productLines.harvestErr = productlines.ErrUntrustedEvent

	body := `{
		"scene_id": "landsat:LC80120442026121LGN00",
		"__signature__": "bogus",
		"min_x": -81, "min_y": 24.5, "max_x": -80, "max_y": 25.5
	}`
	req := httptest.NewRequest(http.MethodPost, "/v0/productline/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHarvestEventFailureTriggersRedelivery(t *testing.T) {
	h := setupServer(t)
	h.productLines.harvestErr = errors.New("database is on fire")

	body := `{
		"scene_id": "landsat:LC80120442026121LGN00",
		"__signature__": "` + strings.Repeat("ab", 48) + `",
		"min_x": -81, "min_y": 24.5, "max_x": -80, "max_y": 25.5
	}`
	req := httptest.NewRequest(http.MethodPost, "/v0/productline/event", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so Piazza redelivers, got %d", rec.Code)
	}
}

func TestDownloadSceneRedirects(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/scene/landsat:LC80120442026121LGN00.TIF", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if location != "https://imagery.example.com/LC80120442026121LGN00.TIF" {
		t.Errorf("unexpected redirect location %q", location)
	}
}

func TestListAlgorithms(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/algorithm", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	algorithms, ok := payload["algorithms"].([]interface{})
	if !ok || len(algorithms) != 1 {
		t.Fatalf("expected 1 algorithm, got %v", payload["algorithms"])
	}
}

func TestGetAlgorithmNotFound(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/v0/algorithm/svc-nope", ""))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unmapped error, got %d", rec.Code)
	}
}

func TestWMSProxy(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/wms?layers=beachfront", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "tile" {
		t.Errorf("expected proxied tile body, got %q", rec.Body.String())
	}

	h.wms.err = errors.New("geoserver is down")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/wms", ""))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestTemporaryAuthDisabledByDefault(t *testing.T) {
	h := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/login/temporary_auth", strings.NewReader(`{"username": "x", "password": "y"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when temporary auth is not configured, got %d", rec.Code)
	}
}

func TestTemporaryAuthLogin(t *testing.T) {
	h := setupServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	h.server.cfg.Security.TemporaryAuthUsername = "beta-tester"
	h.server.cfg.Security.TemporaryAuthPasswordHash = string(hash)

	req := httptest.NewRequest(http.MethodPost, "/login/temporary_auth", strings.NewReader(`{"username": "beta-tester", "password": "wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/login/temporary_auth", strings.NewReader(`{"username": "beta-tester", "password": "hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeResponse(t, rec)
	if payload["user_id"] != "temporary:beta-tester" {
		t.Errorf("expected provisioned temporary user, got %v", payload["user_id"])
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != auth.SessionCookieName {
		t.Errorf("expected a session cookie, got %v", cookies)
	}
}

func TestLoginReturnsOAuthURL(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	payload := decodeResponse(t, rec)
	if payload["oauth_url"] != "/login/geoaxis" {
		t.Errorf("unexpected oauth_url %v", payload["oauth_url"])
	}
}

func TestLogoutWithoutSession(t *testing.T) {
	h := setupServer(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, authedRequest(http.MethodGet, "/logout", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
