// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

// Package piazza talks to the Piazza gateway: the service registry that
// backs the algorithm catalog, the trigger store that drives harvest
// events, and the job execution engine that runs detections.
package piazza

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
)

// Piazza job execution statuses.
const (
	StatusSubmitted = "Submitted"
	StatusPending   = "Pending"
	StatusRunning   = "Running"
	StatusSuccess   = "Success"
	StatusError     = "Error"
	StatusCancelled = "Cancelled"
)

var (
	// ErrUnreachable indicates a connection-level failure reaching
	// the gateway.
	ErrUnreachable = errors.New("piazza: gateway is unreachable")

	// ErrUnauthorized indicates the gateway rejected the API key.
	ErrUnauthorized = errors.New("piazza: unauthorized")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("piazza: not found")
)

// HTTPError covers unexpected gateway responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("piazza: unexpected HTTP status %d", e.StatusCode)
}

// InvalidResponseError indicates a response body that does not match
// the gateway contract. ResponseText carries the raw body for operator
// diagnostics.
type InvalidResponseError struct {
	Details      string
	ResponseText string
}

func (e *InvalidResponseError) Error() string {
	return "piazza: invalid response: " + e.Details
}

// Service is a processing service registered with the gateway.
type Service struct {
	ServiceID   string
	Name        string
	Description string
	URL         string
	Metadata    map[string]string
}

// Trigger connects an event type to a service execution.
type Trigger struct {
	TriggerID   string
	Name        string
	EventTypeID string
	ServiceID   string
}

// JobStatus is the current state of a gateway job execution.
type JobStatus struct {
	Status       string
	DataID       string
	ErrorMessage string
}

// DataInput is a single input to a triggered or executed service.
type DataInput struct {
	Content  string `json:"content,omitempty"`
	Type     string `json:"type"`
	MimeType string `json:"mimeType,omitempty"`
}

// Gateway is the surface consumed by the algorithm registry, harvest
// installer, and job service. Both Client and CircuitBreakerClient
// satisfy it.
type Gateway interface {
	GetServices(ctx context.Context, pattern string) ([]Service, error)
	GetService(ctx context.Context, serviceID string) (*Service, error)
	RegisterService(ctx context.Context, name, description, serviceURL, contractURL string) (string, error)
	GetTriggers(ctx context.Context, name string) ([]Trigger, error)
	CreateTrigger(ctx context.Context, name, eventTypeID, serviceID string, dataInputs map[string]DataInput) (string, error)
	Execute(ctx context.Context, serviceID string, dataInputs map[string]DataInput) (string, error)
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)
	GetFile(ctx context.Context, dataID string) ([]byte, error)
}

// Client is the plain HTTP client for the Piazza gateway. Production
// callers should wrap it with NewCircuitBreakerClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client from configuration.
func NewClient(cfg *config.PiazzaConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 18 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL(),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the gateway location. Used by tests.
func (c *Client) SetBaseURL(rawURL string) {
	c.baseURL = rawURL
}

// GetServices lists registered services whose name matches the given
// pattern (a gateway-side regular expression).
func (c *Client) GetServices(ctx context.Context, pattern string) ([]Service, error) {
	query := url.Values{}
	query.Set("keyword", pattern)
	query.Set("perPage", "100")

	body, err := c.do(ctx, http.MethodGet, "/service?"+query.Encode(), nil, "get_services")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []struct {
			ServiceID string `json:"serviceId"`
			URL       string `json:"url"`
			Metadata  struct {
				Name        string            `json:"name"`
				Description string            `json:"description"`
				Extra       map[string]string `json:"metadata"`
			} `json:"resourceMetadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Details: "service listing is not valid JSON", ResponseText: string(body)}
	}

	services := make([]Service, 0, len(envelope.Data))
	for _, item := range envelope.Data {
		services = append(services, Service{
			ServiceID:   item.ServiceID,
			Name:        item.Metadata.Name,
			Description: item.Metadata.Description,
			URL:         item.URL,
			Metadata:    item.Metadata.Extra,
		})
	}
	return services, nil
}

// GetService retrieves a single service by ID.
func (c *Client) GetService(ctx context.Context, serviceID string) (*Service, error) {
	body, err := c.do(ctx, http.MethodGet, "/service/"+url.PathEscape(serviceID), nil, "get_service")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			ServiceID string `json:"serviceId"`
			URL       string `json:"url"`
			Metadata  struct {
				Name        string            `json:"name"`
				Description string            `json:"description"`
				Extra       map[string]string `json:"metadata"`
			} `json:"resourceMetadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Details: "service is not valid JSON", ResponseText: string(body)}
	}
	if envelope.Data.ServiceID == "" {
		return nil, &InvalidResponseError{Details: "serviceId is missing", ResponseText: string(body)}
	}
	return &Service{
		ServiceID:   envelope.Data.ServiceID,
		Name:        envelope.Data.Metadata.Name,
		Description: envelope.Data.Metadata.Description,
		URL:         envelope.Data.URL,
		Metadata:    envelope.Data.Metadata.Extra,
	}, nil
}

// RegisterService registers a new service with the gateway and returns
// its ID.
func (c *Client) RegisterService(ctx context.Context, name, description, serviceURL, contractURL string) (string, error) {
	payload := map[string]any{
		"url":    serviceURL,
		"method": "POST",
		"contractUrl": contractURL,
		"resourceMetadata": map[string]any{
			"name":        name,
			"description": description,
			"classType":   map[string]string{"classification": "UNCLASSIFIED"},
		},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/service", payload, "register_service")
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data struct {
			ServiceID string `json:"serviceId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.ServiceID == "" {
		return "", &InvalidResponseError{Details: "registration did not return a serviceId", ResponseText: string(body)}
	}
	return envelope.Data.ServiceID, nil
}

// GetTriggers lists triggers with the given name.
func (c *Client) GetTriggers(ctx context.Context, name string) ([]Trigger, error) {
	body, err := c.do(ctx, http.MethodGet, "/trigger?perPage=100", nil, "get_triggers")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []struct {
			TriggerID string `json:"triggerId"`
			Name      string `json:"name"`
			EventType string `json:"eventTypeId"`
			Job       struct {
				JobType struct {
					Data struct {
						ServiceID string `json:"serviceId"`
					} `json:"data"`
				} `json:"jobType"`
			} `json:"job"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Details: "trigger listing is not valid JSON", ResponseText: string(body)}
	}

	triggers := make([]Trigger, 0)
	for _, item := range envelope.Data {
		if item.Name != name {
			continue
		}
		triggers = append(triggers, Trigger{
			TriggerID:   item.TriggerID,
			Name:        item.Name,
			EventTypeID: item.EventType,
			ServiceID:   item.Job.JobType.Data.ServiceID,
		})
	}
	return triggers, nil
}

// CreateTrigger installs a trigger that executes the given service when
// the event type fires, passing the data inputs through.
func (c *Client) CreateTrigger(ctx context.Context, name, eventTypeID, serviceID string, dataInputs map[string]DataInput) (string, error) {
	payload := map[string]any{
		"name":        name,
		"eventTypeId": eventTypeID,
		"enabled":     true,
		"job": map[string]any{
			"jobType": map[string]any{
				"type": "execute-service",
				"data": map[string]any{
					"serviceId":  serviceID,
					"dataInputs": dataInputs,
					"dataOutput": []map[string]string{{"mimeType": "application/json", "type": "text"}},
				},
			},
		},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/trigger", payload, "create_trigger")
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data struct {
			TriggerID string `json:"triggerId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.TriggerID == "" {
		return "", &InvalidResponseError{Details: "trigger creation did not return a triggerId", ResponseText: string(body)}
	}
	return envelope.Data.TriggerID, nil
}

// Execute submits a service execution job and returns the gateway job
// ID.
func (c *Client) Execute(ctx context.Context, serviceID string, dataInputs map[string]DataInput) (string, error) {
	payload := map[string]any{
		"type": "execute-service",
		"data": map[string]any{
			"serviceId":  serviceID,
			"dataInputs": dataInputs,
			"dataOutput": []map[string]string{{"mimeType": "application/json", "type": "text"}},
		},
	}

	body, err := c.doJSON(ctx, http.MethodPost, "/job", payload, "execute")
	if err != nil {
		return "", err
	}

	var envelope struct {
		Data struct {
			JobID string `json:"jobId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.JobID == "" {
		return "", &InvalidResponseError{Details: "execution did not return a jobId", ResponseText: string(body)}
	}
	return envelope.Data.JobID, nil
}

// GetStatus retrieves the execution status of a gateway job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/job/"+url.PathEscape(jobID), nil, "get_status")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Status string `json:"status"`
			Result struct {
				DataID  string `json:"dataId"`
				Message string `json:"message"`
			} `json:"result"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Details: "job status is not valid JSON", ResponseText: string(body)}
	}
	if envelope.Data.Status == "" {
		return nil, &InvalidResponseError{Details: "job status is missing", ResponseText: string(body)}
	}
	return &JobStatus{
		Status:       envelope.Data.Status,
		DataID:       envelope.Data.Result.DataID,
		ErrorMessage: envelope.Data.Result.Message,
	}, nil
}

// GetFile downloads the raw contents of a gateway data resource, such
// as the detections GeoJSON produced by a successful job.
func (c *Client) GetFile(ctx context.Context, dataID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/file/"+url.PathEscape(dataID), nil, "get_file")
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, operation string) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", operation, err)
	}
	return c.do(ctx, method, path, encoded, operation)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, operation string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordUpstreamRequest("piazza", operation, time.Since(start), err)
	if err != nil {
		logging.Err(err).Str("operation", operation).Msg("Piazza gateway unreachable")
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", operation, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode >= 300:
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)-n) + " more bytes)"
}
