// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package config

import (
	"time"

	"github.com/tomtom215/proxywatch/internal/models"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, then config.yaml / config.yml, then /etc/proxywatch/)
//  3. Environment variables, mapped explicitly in envTransformFunc
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Security   SecurityConfig   `koanf:"security"`
	MetricsAPI MetricsAPIConfig `koanf:"metrics_api"`
	Bandwidth  BandwidthConfig  `koanf:"bandwidth"`
	Export     ExportConfig     `koanf:"export"`
	Events     EventsConfig     `koanf:"events"`

	// Proxies is the monitored proxy inventory. Export filters select from it.
	Proxies []models.Proxy `koanf:"proxies"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development, staging, production
}

// LoggingConfig mirrors logging.Config for the loader.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds CORS and rate limiting. Authentication is handled
// upstream of this service.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	ExportRateLimit   int           `koanf:"export_rate_limit"` // export creations per IP per minute
}

// MetricsAPIConfig points at the upstream bandwidth metrics API.
type MetricsAPIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	CircuitBreaker bool          `koanf:"circuit_breaker"`
}

// Enabled reports whether a metrics API is configured.
func (m MetricsAPIConfig) Enabled() bool {
	return m.BaseURL != ""
}

// BandwidthConfig controls polling and synthetic fallback.
type BandwidthConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`

	// Fallback is "auto" (allowed outside production), "on" or "off".
	Fallback string `koanf:"fallback"`

	// PollerIdleTTL is how long an unreferenced poller lives before the
	// sweeper stops it.
	PollerIdleTTL time.Duration `koanf:"poller_idle_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// FirstResultTimeout bounds how long an HTTP request waits for a new
	// poller's first fetch.
	FirstResultTimeout time.Duration `koanf:"first_result_timeout"`
}

// ExportConfig controls the export pipeline.
type ExportConfig struct {
	OutputDir        string        `koanf:"output_dir"`
	JobTimeout       time.Duration `koanf:"job_timeout"`
	WatchdogInterval time.Duration `koanf:"watchdog_interval"`
	Store            string        `koanf:"store"` // memory or badger
	BadgerPath       string        `koanf:"badger_path"`
	MaxJobs          int           `koanf:"max_jobs"`
}

// EventsConfig selects the export event bus transport.
type EventsConfig struct {
	Backend string `koanf:"backend"` // memory or nats
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic"`
}

// Load reads configuration from defaults, an optional config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}

// FallbackAllowed resolves the bandwidth fallback mode against the environment.
func (c *Config) FallbackAllowed() bool {
	switch c.Bandwidth.Fallback {
	case "on":
		return true
	case "off":
		return false
	default:
		return !c.IsProduction()
	}
}

// ProxyByID returns the configured proxy with id.
func (c *Config) ProxyByID(id string) (models.Proxy, bool) {
	for _, p := range c.Proxies {
		if p.ID == id {
			return p, true
		}
	}
	return models.Proxy{}, false
}
