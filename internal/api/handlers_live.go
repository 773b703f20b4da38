// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/timerange"
	ws "github.com/tomtom215/proxywatch/internal/websocket"
)

// registerTimeout bounds the hand-off to a hub that may be shutting down.
const registerTimeout = 5 * time.Second

// healthResponse is the body of the health probes.
type healthResponse struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Components map[string]string `json:"components,omitempty"`
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(healthResponse{
		Status: "ok",
		Uptime: h.now().Sub(h.started).Truncate(time.Second).String(),
	})
}

// Ready handles GET /health/ready. The service is ready once the WebSocket
// hub is wired; pollers and exports have no external prerequisite.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	components := map[string]string{
		"pollers": "ok",
		"exports": "ok",
		"hub":     "ok",
	}
	if h.hub == nil {
		components["hub"] = "unavailable"
		rw.ServiceUnavailable("not ready", components)
		return
	}
	if !h.cfg.MetricsAPI.Enabled() {
		components["metrics_api"] = "not configured"
	}
	rw.Success(healthResponse{
		Status:     "ready",
		Uptime:     h.now().Sub(h.started).Truncate(time.Second).String(),
		Components: components,
	})
}

// checkOrigin accepts configured origins only. A wildcard configuration
// accepts any origin; a missing Origin header is always rejected.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.Ctx(r.Context()).Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	if _, err := url.Parse(origin); err != nil {
		return false
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Ctx(r.Context()).Warn().
		Str("origin", sanitizeLogValue(origin)).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// WebSocket handles GET /api/v1/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("live updates unavailable", nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn, h.pollers, timerange.WithClock(h.now))
	select {
	case h.hub.Register <- client:
	case <-time.After(registerTimeout):
		logging.Ctx(r.Context()).Warn().Msg("WebSocket hub not accepting clients")
		_ = conn.Close()
		return
	}
	client.Start()
	logging.Ctx(r.Context()).Debug().Uint64("client_id", client.ID()).Msg("WebSocket client connected")
}
