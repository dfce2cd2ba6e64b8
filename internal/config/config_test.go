// Beachfront - Geospatial Imagery Analysis Platform
// Copyright 2026 VeniceGeo
// SPDX-License-Identifier: Apache-2.0
// https://github.com/venicegeo/bf-api

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("expected default port 5000, got %d", cfg.Server.Port)
	}
	if cfg.Security.SessionTTL != 30*time.Minute {
		t.Errorf("expected default session TTL 30m, got %s", cfg.Security.SessionTTL)
	}
	if cfg.Security.SessionStore != "badger" {
		t.Errorf("expected default session store badger, got %q", cfg.Security.SessionStore)
	}
	if cfg.Worker.JobTTL != 2*time.Hour {
		t.Errorf("expected default job TTL 2h, got %s", cfg.Worker.JobTTL)
	}
	if cfg.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("DOMAIN", "geointservices.io")
	t.Setenv("PIAZZA_HOST", "piazza.geointservices.io")
	t.Setenv("CORS_ORIGINS", "https://beachfront.geointservices.io, https://bf-swagger.geointservices.io")
	t.Setenv("DISABLE_RATE_LIMIT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.APIBaseURL() != "https://bf-api.geointservices.io" {
		t.Errorf("unexpected API base URL %q", cfg.APIBaseURL())
	}
	if cfg.Piazza.GatewayAddress() != "piazza.geointservices.io" {
		t.Errorf("unexpected gateway address %q", cfg.Piazza.GatewayAddress())
	}
	if len(cfg.Security.CORSOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %v", cfg.Security.CORSOrigins)
	}
	if cfg.Security.CORSOrigins[1] != "https://bf-swagger.geointservices.io" {
		t.Errorf("expected trimmed origin, got %q", cfg.Security.CORSOrigins[1])
	}
	if !cfg.Security.RateLimitDisabled {
		t.Error("expected rate limiting disabled")
	}
}

func TestUnmappedEnvVarsAreIgnored(t *testing.T) {
	t.Setenv("PATH_INFO", "garbage")
	t.Setenv("SERVER_PORT", "99999")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("unmapped env var changed the port: %d", cfg.Server.Port)
	}
}

func TestConfigFileLayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := "server:\n  port: 7000\nworker:\n  interval: 2m\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("expected port 7000 from file, got %d", cfg.Server.Port)
	}
	if cfg.Worker.Interval != 2*time.Minute {
		t.Errorf("expected worker interval 2m from file, got %s", cfg.Worker.Interval)
	}

	// Env vars override the file.
	t.Setenv("HTTP_PORT", "7001")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("expected env var to win, got %d", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config { return defaultConfig() }

	t.Run("rejects bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for port 0")
		}
	})

	t.Run("rejects unknown session store", func(t *testing.T) {
		cfg := base()
		cfg.Security.SessionStore = "redis"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown session store")
		}
	})

	t.Run("badger store requires path", func(t *testing.T) {
		cfg := base()
		cfg.Security.SessionStorePath = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing session store path")
		}
	})

	t.Run("production requires session secret", func(t *testing.T) {
		cfg := base()
		cfg.Server.Environment = "production"
		cfg.Server.Domain = "geointservices.io"
		cfg.Piazza.APIKey = "key"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for empty session secret in production")
		}

		cfg.Security.SessionSecret = "0123456789abcdef0123456789abcdef"
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid production config, got %v", err)
		}
	})

	t.Run("production requires piazza api key", func(t *testing.T) {
		cfg := base()
		cfg.Server.Environment = "production"
		cfg.Server.Domain = "geointservices.io"
		cfg.Security.SessionSecret = "0123456789abcdef0123456789abcdef"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing Piazza API key in production")
		}
	})
}
