// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/proxywatch/internal/cache"
	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/export"
	"github.com/tomtom215/proxywatch/internal/models"
	ws "github.com/tomtom215/proxywatch/internal/websocket"
)

const (
	chartCacheSize = 128
	chartCacheTTL  = 10 * time.Minute
)

// Exporter is the export job surface the handlers need. *export.Manager
// satisfies it.
type Exporter interface {
	Create(ctx context.Context, opts models.ExportOptions) (models.ExportJob, error)
	Get(id string) (models.ExportJob, error)
	List() []models.ExportJob
	Download(id string) (export.Download, error)
	Delete(id string) error
}

// HandlerConfig wires the handler dependencies.
type HandlerConfig struct {
	Config  *config.Config
	Pollers ws.PollerRegistry
	Exports Exporter
	Hub     *ws.Hub

	// Now defaults to time.Now. It resolves quick filters.
	Now func() time.Time
}

// Handler serves the API routes.
type Handler struct {
	cfg      *config.Config
	pollers  ws.PollerRegistry
	exports  Exporter
	hub      *ws.Hub
	now      func() time.Time
	upgrader websocket.Upgrader
	started  time.Time

	// charts holds rendered PNGs keyed by snapshot version and size.
	charts *cache.LRU[[]byte]
}

// NewHandler validates the wiring and builds a Handler.
func NewHandler(hc HandlerConfig) (*Handler, error) {
	if hc.Config == nil {
		return nil, errors.New("api: config is required")
	}
	if hc.Pollers == nil {
		return nil, errors.New("api: poller registry is required")
	}
	if hc.Exports == nil {
		return nil, errors.New("api: exporter is required")
	}
	if hc.Now == nil {
		hc.Now = time.Now
	}
	h := &Handler{
		cfg:     hc.Config,
		pollers: hc.Pollers,
		exports: hc.Exports,
		hub:     hc.Hub,
		now:     hc.Now,
		started: hc.Now(),
		charts:  cache.NewLRU[[]byte](chartCacheSize, chartCacheTTL),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h, nil
}

// firstResultTimeout bounds how long a request waits on a new poller.
func (h *Handler) firstResultTimeout() time.Duration {
	if d := h.cfg.Bandwidth.FirstResultTimeout; d > 0 {
		return d
	}
	return 5 * time.Second
}
