// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tomtom215/proxywatch/internal/models"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()

	if cfg.Server.Port != 8480 {
		t.Errorf("Server.Port = %d, want 8480", cfg.Server.Port)
	}
	if cfg.Bandwidth.PollInterval != 30*time.Second {
		t.Errorf("Bandwidth.PollInterval = %v, want 30s", cfg.Bandwidth.PollInterval)
	}
	if cfg.Bandwidth.Fallback != "auto" {
		t.Errorf("Bandwidth.Fallback = %q, want auto", cfg.Bandwidth.Fallback)
	}
	if cfg.Export.JobTimeout != 10*time.Minute {
		t.Errorf("Export.JobTimeout = %v, want 10m", cfg.Export.JobTimeout)
	}
	if cfg.Export.Store != "memory" {
		t.Errorf("Export.Store = %q, want memory", cfg.Export.Store)
	}
	if cfg.Events.Backend != "memory" {
		t.Errorf("Events.Backend = %q, want memory", cfg.Events.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithKoanfDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q", cfg.Server.Host)
	}
	if diff := cmp.Diff([]string{"*"}, cfg.Security.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch:\n%s", diff)
	}
}

func TestLoadWithKoanfEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("METRICS_API_URL", "https://metrics.example")
	t.Setenv("BANDWIDTH_POLL_INTERVAL", "15s")
	t.Setenv("EXPORT_STORE", "badger")
	t.Setenv("PROXIES", "edge-1:Edge One:us-east:live:0.05,edge-2")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.IsProduction() {
		t.Error("expected production")
	}
	if cfg.FallbackAllowed() {
		t.Error("auto fallback must be off in production")
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Security.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch:\n%s", diff)
	}
	if cfg.Bandwidth.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v", cfg.Bandwidth.PollInterval)
	}
	if cfg.Export.Store != "badger" {
		t.Errorf("Export.Store = %q", cfg.Export.Store)
	}

	want := []models.Proxy{
		{ID: "edge-1", Name: "Edge One", Region: "us-east", Category: "live", CostPerGB: 0.05},
		{ID: "edge-2", Name: "edge-2"},
	}
	if diff := cmp.Diff(want, cfg.Proxies); diff != "" {
		t.Errorf("Proxies mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithKoanfConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxywatch.yaml")
	content := `
server:
  port: 7000
bandwidth:
  fallback: "off"
proxies:
  - id: rtmp-eu
    name: RTMP Europe
    region: eu-west
    category: live
    cost_per_gb: 0.02
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7001")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("env should override file: port = %d", cfg.Server.Port)
	}
	if cfg.FallbackAllowed() {
		t.Error("fallback off in file should disable fallback")
	}
	p, ok := cfg.ProxyByID("rtmp-eu")
	if !ok || p.CostPerGB != 0.02 || p.Region != "eu-west" {
		t.Errorf("ProxyByID = %+v, %v", p, ok)
	}
}

func TestLoadWithKoanfInvalidProxies(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("PROXIES", "edge-1:Edge:us:live:cheap")

	if _, err := LoadWithKoanf(); err == nil || !strings.Contains(err.Error(), "cost_per_gb") {
		t.Errorf("expected cost_per_gb error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "LOG_FORMAT"},
		{"rate limit too low", func(c *Config) { c.Security.RateLimitReqs = 0 }, "RATE_LIMIT_REQS"},
		{"rate limit disabled skips checks", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, ""},
		{"relative metrics url", func(c *Config) { c.MetricsAPI.BaseURL = "metrics.local" }, "METRICS_API_URL"},
		{"poll interval", func(c *Config) { c.Bandwidth.PollInterval = 0 }, "BANDWIDTH_POLL_INTERVAL"},
		{"fallback mode", func(c *Config) { c.Bandwidth.Fallback = "maybe" }, "BANDWIDTH_FALLBACK"},
		{"export store", func(c *Config) { c.Export.Store = "s3" }, "EXPORT_STORE"},
		{"badger path", func(c *Config) {
			c.Export.Store = "badger"
			c.Export.BadgerPath = ""
		}, "EXPORT_BADGER_PATH"},
		{"events backend", func(c *Config) { c.Events.Backend = "kafka" }, "EVENTS_BACKEND"},
		{"duplicate proxy", func(c *Config) {
			c.Proxies = []models.Proxy{{ID: "a"}, {ID: "a"}}
		}, "duplicate proxy"},
		{"negative cost", func(c *Config) {
			c.Proxies = []models.Proxy{{ID: "a", CostPerGB: -1}}
		}, "cost_per_gb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestFallbackAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode, env string
		want      bool
	}{
		{"auto", "development", true},
		{"auto", "production", false},
		{"on", "production", true},
		{"off", "development", false},
	}
	for _, tt := range tests {
		cfg := defaultConfig()
		cfg.Bandwidth.Fallback = tt.mode
		cfg.Server.Environment = tt.env
		if got := cfg.FallbackAllowed(); got != tt.want {
			t.Errorf("FallbackAllowed(%s, %s) = %v, want %v", tt.mode, tt.env, got, tt.want)
		}
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"HTTP_PORT":          "server.port",
		"METRICS_API_URL":    "metrics_api.base_url",
		"EXPORT_JOB_TIMEOUT": "export.job_timeout",
		"NATS_URL":           "events.nats_url",
		"PATH":               "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}
