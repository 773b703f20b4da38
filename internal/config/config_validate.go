// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that configuration values are present and within bounds.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateRateLimits,
		c.validateMetricsAPI,
		c.validateBandwidth,
		c.validateExport,
		c.validateEvents,
		c.validateProxies,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

func (c *Config) validateLogging() error {
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console")
	}
	return nil
}

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	if c.Security.ExportRateLimit < 1 {
		return fmt.Errorf("EXPORT_RATE_LIMIT must be at least 1")
	}
	return nil
}

func (c *Config) validateMetricsAPI() error {
	if !c.MetricsAPI.Enabled() {
		return nil
	}
	u, err := url.Parse(c.MetricsAPI.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("METRICS_API_URL must be an absolute http(s) URL, got %q", c.MetricsAPI.BaseURL)
	}
	if c.MetricsAPI.MaxRetries < 0 || c.MetricsAPI.MaxRetries > 10 {
		return fmt.Errorf("METRICS_API_MAX_RETRIES must be between 0 and 10")
	}
	return nil
}

func (c *Config) validateBandwidth() error {
	if c.Bandwidth.PollInterval < time.Second {
		return fmt.Errorf("BANDWIDTH_POLL_INTERVAL must be at least 1s")
	}
	switch c.Bandwidth.Fallback {
	case "auto", "on", "off":
	default:
		return fmt.Errorf("BANDWIDTH_FALLBACK must be auto, on or off")
	}
	if c.Bandwidth.PollerIdleTTL <= 0 || c.Bandwidth.SweepInterval <= 0 {
		return fmt.Errorf("BANDWIDTH_POLLER_IDLE_TTL and BANDWIDTH_SWEEP_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) validateExport() error {
	if c.Export.OutputDir == "" {
		return fmt.Errorf("EXPORT_OUTPUT_DIR is required")
	}
	if c.Export.JobTimeout < time.Second || c.Export.WatchdogInterval <= 0 {
		return fmt.Errorf("EXPORT_JOB_TIMEOUT must be at least 1s and EXPORT_WATCHDOG_INTERVAL positive")
	}
	switch c.Export.Store {
	case "memory":
	case "badger":
		if c.Export.BadgerPath == "" {
			return fmt.Errorf("EXPORT_BADGER_PATH is required when EXPORT_STORE=badger")
		}
	default:
		return fmt.Errorf("EXPORT_STORE must be memory or badger")
	}
	if c.Export.MaxJobs < 1 {
		return fmt.Errorf("EXPORT_MAX_JOBS must be at least 1")
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if c.Events.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when EVENTS_BACKEND=nats")
		}
	default:
		return fmt.Errorf("EVENTS_BACKEND must be memory or nats")
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("EVENTS_TOPIC is required")
	}
	return nil
}

func (c *Config) validateProxies() error {
	seen := make(map[string]bool, len(c.Proxies))
	for _, p := range c.Proxies {
		if p.ID == "" {
			return fmt.Errorf("proxy entries require an id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate proxy id %q", p.ID)
		}
		if p.CostPerGB < 0 {
			return fmt.Errorf("proxy %s: cost_per_gb must not be negative", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT is production.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// IsDevelopment reports whether ENVIRONMENT is development (or unset).
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "" || env == "development" || env == "dev"
}

// HasWildcardCORS reports whether any CORS origin is "*".
func (c *Config) HasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}
