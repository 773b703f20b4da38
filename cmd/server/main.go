// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/proxywatch/internal/api"
	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/eventbus"
	"github.com/tomtom215/proxywatch/internal/export"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/poller"
	"github.com/tomtom215/proxywatch/internal/supervisor"
	"github.com/tomtom215/proxywatch/internal/supervisor/services"
	ws "github.com/tomtom215/proxywatch/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Int("proxies", len(cfg.Proxies)).
		Bool("metrics_api", cfg.MetricsAPI.Enabled()).
		Bool("fallback", cfg.FallbackAllowed()).
		Msg("Starting proxywatch with supervisor tree")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := bandwidth.NewSource(newFetcher(cfg), bandwidth.SourceConfig{
		AllowFallback: cfg.FallbackAllowed(),
	})
	if !cfg.MetricsAPI.Enabled() {
		logging.Warn().Msg("No metrics API configured; bandwidth fetches will fail or use synthetic data")
	}

	registry := poller.NewRegistry(source, poller.RegistryConfig{
		Poller: poller.Config{
			Interval:  cfg.Bandwidth.PollInterval,
			Scheduler: poller.TickerScheduler{},
			Now:       time.Now,
		},
		IdleTTL:       cfg.Bandwidth.PollerIdleTTL,
		SweepInterval: cfg.Bandwidth.SweepInterval,
	})

	bus, err := eventbus.New(cfg.Events)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	manager, err := newExportManager(cfg, source, bus)
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing export manager")
		}
	}()

	hub := ws.NewHub()

	handler, err := api.NewHandler(api.HandlerConfig{
		Config:  cfg,
		Pollers: registry,
		Exports: manager,
		Hub:     hub,
	})
	if err != nil {
		return fmt.Errorf("create API handler: %w", err)
	}
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(cfg)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(manager)
	tree.AddDataService(registry)
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(ws.NewJobForwarder(hub, bus))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}
	return nil
}

// newFetcher builds the metrics API client chain. It returns nil when no API
// is configured.
func newFetcher(cfg *config.Config) bandwidth.Fetcher {
	if !cfg.MetricsAPI.Enabled() {
		return nil
	}
	var f bandwidth.Fetcher = bandwidth.NewClient(&cfg.MetricsAPI)
	if cfg.MetricsAPI.CircuitBreaker {
		f = bandwidth.NewBreakerFetcher("metrics-api", f)
	}
	logging.Info().
		Str("base_url", cfg.MetricsAPI.BaseURL).
		Bool("circuit_breaker", cfg.MetricsAPI.CircuitBreaker).
		Msg("Metrics API client configured")
	return f
}

func newExportManager(cfg *config.Config, source export.SeriesSource, bus *eventbus.Bus) (*export.Manager, error) {
	if err := os.MkdirAll(cfg.Export.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	store, err := export.OpenStore(cfg.Export.Store, cfg.Export.BadgerPath)
	if err != nil {
		return nil, fmt.Errorf("open export store: %w", err)
	}

	backend, err := export.NewLocalBackend(source, export.LocalBackendConfig{
		OutputDir: cfg.Export.OutputDir,
		Proxies:   cfg.Proxies,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create export backend: %w", err)
	}

	manager, err := export.NewManager(backend, export.ManagerConfig{
		JobTimeout:       cfg.Export.JobTimeout,
		WatchdogInterval: cfg.Export.WatchdogInterval,
		MaxJobs:          cfg.Export.MaxJobs,
		Store:            store,
		Publisher:        bus,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create export manager: %w", err)
	}

	logging.Info().
		Str("output_dir", cfg.Export.OutputDir).
		Str("store", cfg.Export.Store).
		Str("events", cfg.Events.Backend).
		Msg("Export manager initialized")
	return manager, nil
}
