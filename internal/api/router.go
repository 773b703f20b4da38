// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/proxywatch/internal/middleware"
)

// NewRouter mounts every route on a chi router.
//
// Middleware order:
//  1. request and correlation IDs
//  2. real client IP (before rate limiting keys on it)
//  3. panic recovery
//  4. CORS
//  5. global rate limit
//  6. security headers
//  7. prometheus request metrics
//  8. response compression
func NewRouter(h *Handler, mw *ChiMiddleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())
	r.Use(mw.RateLimit())
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)
	r.Use(chimiddleware.Compress(5, "application/json", "text/csv"))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		NewResponseWriter(w, req).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/time-ranges", h.TimeRanges)
		r.Post("/time-ranges/normalize", h.NormalizeTimeRange)

		r.Get("/proxies", h.Proxies)
		r.Route("/proxies/{id}/bandwidth", func(r chi.Router) {
			r.Get("/", h.Bandwidth)
			r.Post("/refresh", h.RefreshBandwidth)
			r.Get("/chart.png", h.BandwidthChart)
		})

		r.Route("/exports", func(r chi.Router) {
			r.Get("/", h.ListExports)
			r.With(mw.ExportRateLimit()).Post("/", h.CreateExport)
			r.Get("/{id}", h.GetExport)
			r.Delete("/{id}", h.DeleteExport)
			r.Get("/{id}/download", h.DownloadExport)
		})

		r.Get("/ws", h.WebSocket)
	})

	return r
}
