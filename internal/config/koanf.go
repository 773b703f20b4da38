// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/proxywatch/config.yaml",
	"/etc/proxywatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8480,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			ExportRateLimit:   10,
		},
		MetricsAPI: MetricsAPIConfig{
			BaseURL:        "",
			Timeout:        10 * time.Second,
			MaxRetries:     2,
			RetryBaseDelay: 250 * time.Millisecond,
			CircuitBreaker: true,
		},
		Bandwidth: BandwidthConfig{
			PollInterval:       30 * time.Second,
			Fallback:           "auto",
			PollerIdleTTL:      5 * time.Minute,
			SweepInterval:      time.Minute,
			FirstResultTimeout: 5 * time.Second,
		},
		Export: ExportConfig{
			OutputDir:        "/data/exports",
			JobTimeout:       10 * time.Minute,
			WatchdogInterval: 30 * time.Second,
			Store:            "memory",
			BadgerPath:       "/data/export-jobs",
			MaxJobs:          500,
		},
		Events: EventsConfig{
			Backend: "memory",
			NATSURL: "nats://127.0.0.1:4222",
			Topic:   "proxywatch.export.jobs",
		},
	}
}

// LoadWithKoanf loads configuration in three layers (defaults, file, env).
// Precedence: ENV > file > defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processProxies(k); err != nil {
		return nil, fmt.Errorf("failed to parse proxies: %w", err)
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

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		if err := k.Set(path, splitList(strVal)); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// processProxies parses PROXIES=id:name:region:category:cost_per_gb,... into
// the proxies list. A list from the YAML file is left untouched.
func processProxies(k *koanf.Koanf) error {
	raw, ok := k.Get("proxies").(string)
	if !ok {
		return nil
	}
	entries := splitList(raw)
	proxies := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(entry, ":")
		if parts[0] == "" {
			return fmt.Errorf("proxy entry %q has no id", entry)
		}
		p := map[string]interface{}{"id": parts[0], "name": parts[0]}
		if len(parts) > 1 && parts[1] != "" {
			p["name"] = parts[1]
		}
		if len(parts) > 2 {
			p["region"] = parts[2]
		}
		if len(parts) > 3 {
			p["category"] = parts[3]
		}
		if len(parts) > 4 && parts[4] != "" {
			cost, err := strconv.ParseFloat(parts[4], 64)
			if err != nil {
				return fmt.Errorf("proxy %s: invalid cost_per_gb %q: %w", parts[0], parts[4], err)
			}
			p["cost_per_gb"] = cost
		}
		proxies = append(proxies, p)
	}
	return k.Set("proxies", proxies)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak in.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		// Server
		"http_port":      "server.port",
		"http_host":      "server.host",
		"server_timeout": "server.timeout",
		"environment":    "server.environment",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Security
		"cors_origins":       "security.cors_origins",
		"rate_limit_reqs":    "security.rate_limit_reqs",
		"rate_limit_window":  "security.rate_limit_window",
		"disable_rate_limit": "security.rate_limit_disabled",
		"export_rate_limit":  "security.export_rate_limit",

		// Metrics API
		"metrics_api_url":              "metrics_api.base_url",
		"metrics_api_timeout":          "metrics_api.timeout",
		"metrics_api_max_retries":      "metrics_api.max_retries",
		"metrics_api_retry_base_delay": "metrics_api.retry_base_delay",
		"metrics_api_circuit_breaker":  "metrics_api.circuit_breaker",

		// Bandwidth polling
		"bandwidth_poll_interval":        "bandwidth.poll_interval",
		"bandwidth_fallback":             "bandwidth.fallback",
		"bandwidth_poller_idle_ttl":      "bandwidth.poller_idle_ttl",
		"bandwidth_sweep_interval":       "bandwidth.sweep_interval",
		"bandwidth_first_result_timeout": "bandwidth.first_result_timeout",

		// Export
		"export_output_dir":        "export.output_dir",
		"export_job_timeout":       "export.job_timeout",
		"export_watchdog_interval": "export.watchdog_interval",
		"export_store":             "export.store",
		"export_badger_path":       "export.badger_path",
		"export_max_jobs":          "export.max_jobs",

		// Events
		"events_backend": "events.backend",
		"nats_url":       "events.nats_url",
		"events_topic":   "events.topic",

		// Inventory
		"proxies": "proxies",
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
