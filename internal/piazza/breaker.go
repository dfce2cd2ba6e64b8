// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package piazza

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/venicegeo/bf-api/internal/config"
	"github.com/venicegeo/bf-api/internal/logging"
	"github.com/venicegeo/bf-api/internal/metrics"
)

// CircuitBreakerClient wraps Client with circuit breaker protection so
// a flapping gateway does not tie up every request worker. The breaker
// uses real time for its interval and timeout calculations; tests
// should exercise the wrapped client directly.
type CircuitBreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewCircuitBreakerClient creates a gateway client behind a circuit
// breaker. Opens after a 60% failure rate with at least 10 requests in
// the measurement window.
func NewCircuitBreakerClient(cfg *config.PiazzaConfig) *CircuitBreakerClient {
	return newBreaker(NewClient(cfg), "piazza-gateway")
}

func newBreaker(client *Client, cbName string) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

func (cbc *CircuitBreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cbc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
			counts := cbc.cb.Counts()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(float64(counts.ConsecutiveFailures))
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cbc.name).Set(0)
	return result, nil
}

func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// GetServices lists matching services with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetServices(ctx context.Context, pattern string) ([]Service, error) {
	return castResult[[]Service](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetServices(ctx, pattern)
	}))
}

// GetService retrieves a service by ID with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetService(ctx context.Context, serviceID string) (*Service, error) {
	return castResult[*Service](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetService(ctx, serviceID)
	}))
}

// RegisterService registers a service with circuit breaker protection.
func (cbc *CircuitBreakerClient) RegisterService(ctx context.Context, name, description, serviceURL, contractURL string) (string, error) {
	return castResult[string](cbc.execute(func() (interface{}, error) {
		return cbc.client.RegisterService(ctx, name, description, serviceURL, contractURL)
	}))
}

// GetTriggers lists triggers by name with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetTriggers(ctx context.Context, name string) ([]Trigger, error) {
	return castResult[[]Trigger](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetTriggers(ctx, name)
	}))
}

// CreateTrigger installs a trigger with circuit breaker protection.
func (cbc *CircuitBreakerClient) CreateTrigger(ctx context.Context, name, eventTypeID, serviceID string, dataInputs map[string]DataInput) (string, error) {
	return castResult[string](cbc.execute(func() (interface{}, error) {
		return cbc.client.CreateTrigger(ctx, name, eventTypeID, serviceID, dataInputs)
	}))
}

// Execute submits a job with circuit breaker protection.
func (cbc *CircuitBreakerClient) Execute(ctx context.Context, serviceID string, dataInputs map[string]DataInput) (string, error) {
	return castResult[string](cbc.execute(func() (interface{}, error) {
		return cbc.client.Execute(ctx, serviceID, dataInputs)
	}))
}

// GetStatus fetches job status with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	return castResult[*JobStatus](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetStatus(ctx, jobID)
	}))
}

// GetFile downloads a data resource with circuit breaker protection.
func (cbc *CircuitBreakerClient) GetFile(ctx context.Context, dataID string) ([]byte, error) {
	return castResult[[]byte](cbc.execute(func() (interface{}, error) {
		return cbc.client.GetFile(ctx, dataID)
	}))
}
