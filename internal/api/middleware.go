// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/middleware"
)

// ChiMiddlewareConfig holds the CORS and rate limit settings.
type ChiMiddlewareConfig struct {
	CORSOrigins      []string
	RateLimitReqs    int
	RateLimitWindow  time.Duration
	RateLimitEnabled bool

	// ExportRateLimit is export creations per IP per minute. Zero disables it.
	ExportRateLimit int
}

// ChiMiddlewareConfigFrom derives the middleware settings from cfg.
func ChiMiddlewareConfigFrom(cfg *config.Config) ChiMiddlewareConfig {
	return ChiMiddlewareConfig{
		CORSOrigins:      cfg.Security.CORSOrigins,
		RateLimitReqs:    cfg.Security.RateLimitReqs,
		RateLimitWindow:  cfg.Security.RateLimitWindow,
		RateLimitEnabled: !cfg.Security.RateLimitDisabled,
		ExportRateLimit:  cfg.Security.ExportRateLimit,
	}
}

// ChiMiddleware builds the chi-compatible CORS and rate limit middleware.
type ChiMiddleware struct {
	config ChiMiddlewareConfig
}

// NewChiMiddleware creates the middleware set.
func NewChiMiddleware(cfg ChiMiddlewareConfig) *ChiMiddleware {
	return &ChiMiddleware{config: cfg}
}

// CORS returns the go-chi/cors handler. A wildcard origin disables
// credentials, which browsers reject in that combination.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	origins := m.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
			break
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: !wildcard,
		MaxAge:           300,
	})
}

// RateLimit applies the global per-IP limit.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if !m.config.RateLimitEnabled || m.config.RateLimitReqs <= 0 {
		return passthrough
	}
	return limiter("global", m.config.RateLimitReqs, m.config.RateLimitWindow)
}

// ExportRateLimit applies the stricter per-IP limit on export creation.
func (m *ChiMiddleware) ExportRateLimit() func(http.Handler) http.Handler {
	if !m.config.RateLimitEnabled || m.config.ExportRateLimit <= 0 {
		return passthrough
	}
	return limiter("exports", m.config.ExportRateLimit, time.Minute)
}

func limiter(endpoint string, reqs int, window time.Duration) func(http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		reqs,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(middleware.RateLimited(endpoint, func(w http.ResponseWriter, r *http.Request) {
			logging.Ctx(r.Context()).Warn().
				Str("endpoint", endpoint).
				Str("remote_addr", sanitizeLogValue(r.RemoteAddr)).
				Msg("Rate limit exceeded")
			NewResponseWriter(w, r).TooManyRequests("rate limit exceeded")
		})),
	)
}

func passthrough(next http.Handler) http.Handler { return next }
