// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/bf-api/config.yaml",
	"/etc/bf-api/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        5000,
			Timeout:     30 * time.Second,
			Domain:      "",
			Environment: "development",
		},
		Database: DatabaseConfig{
			Path:      "/data/beachfront.duckdb",
			MaxMemory: "2GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Security: SecurityConfig{
			EnforceHTTPS:      true,
			SessionSecret:     "",
			SessionTTL:        30 * time.Minute,
			SessionStore:      "badger",
			SessionStorePath:  "/data/sessions",
			CookieSecure:      true,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		GeoAxis: GeoAxisConfig{
			Scheme:  "https",
			Timeout: 12 * time.Second,
		},
		Piazza: PiazzaConfig{
			Scheme:      "https",
			Timeout:     18 * time.Second,
			SkipInstall: false,
		},
		GeoServer: GeoServerConfig{
			Scheme:      "https",
			Timeout:     24 * time.Second,
			SkipInstall: false,
		},
		Catalog: CatalogConfig{
			Scheme:  "https",
			Timeout: 12 * time.Second,
		},
		Worker: WorkerConfig{
			Interval:          60 * time.Second,
			JobTTL:            2 * time.Hour,
			MaxPollsPerSecond: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices
// when they arrive as env var strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices
// for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config
// paths. Unmapped variables are skipped so random environment noise
// cannot pollute the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":   "server.host",
		"http_port":   "server.port",
		"domain":      "server.domain",
		"environment": "server.environment",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Security
		"enforce_https":                "security.enforce_https",
		"session_secret":               "security.session_secret",
		"session_ttl":                  "security.session_ttl",
		"session_store":                "security.session_store",
		"session_store_path":           "security.session_store_path",
		"cookie_secure":                "security.cookie_secure",
		"rate_limit_requests":          "security.rate_limit_reqs",
		"rate_limit_window":            "security.rate_limit_window",
		"disable_rate_limit":           "security.rate_limit_disabled",
		"cors_origins":                 "security.cors_origins",
		"temporary_auth_username":      "security.temporary_auth_username",
		"temporary_auth_password_hash": "security.temporary_auth_password_hash",

		// GeoAxis
		"geoaxis_scheme":       "geoaxis.scheme",
		"geoaxis_host":         "geoaxis.host",
		"geoaxis_client_id":    "geoaxis.client_id",
		"geoaxis_secret":       "geoaxis.client_secret",
		"geoaxis_redirect_uri": "geoaxis.redirect_uri",
		"geoaxis_timeout":      "geoaxis.timeout",

		// Piazza
		"piazza_scheme":            "piazza.scheme",
		"piazza_host":              "piazza.host",
		"piazza_api_key":           "piazza.api_key",
		"piazza_timeout":           "piazza.timeout",
		"skip_productline_install": "piazza.skip_install",

		// GeoServer
		"geoserver_scheme":        "geoserver.scheme",
		"geoserver_host":          "geoserver.host",
		"geoserver_username":      "geoserver.username",
		"geoserver_password":      "geoserver.password",
		"geoserver_timeout":       "geoserver.timeout",
		"geoserver_datastore_uri": "geoserver.datastore_uri",
		"skip_geoserver_install":  "geoserver.skip_install",

		// Catalog
		"catalog_scheme":  "catalog.scheme",
		"catalog_host":    "catalog.host",
		"catalog_timeout": "catalog.timeout",

		// Worker
		"job_worker_interval":  "worker.interval",
		"job_ttl":              "worker.job_ttl",
		"job_worker_max_polls": "worker.max_polls_per_second",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
