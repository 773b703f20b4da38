// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/chart"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/models"
	"github.com/tomtom215/proxywatch/internal/poller"
)

// bandwidthResponse is a poller snapshot plus display strings.
type bandwidthResponse struct {
	poller.Snapshot
	Proxy            *models.Proxy `json:"proxy,omitempty"`
	TotalFormatted   string        `json:"totalFormatted"`
	PeakFormatted    string        `json:"peakFormatted"`
	AverageFormatted string        `json:"averageFormatted"`
	LastUpdatedText  string        `json:"lastUpdatedText"`
}

func (h *Handler) describe(snap poller.Snapshot, proxy *models.Proxy) bandwidthResponse {
	resp := bandwidthResponse{
		Snapshot:         snap,
		Proxy:            proxy,
		TotalFormatted:   bandwidth.FormatBytes(snap.Total),
		PeakFormatted:    bandwidth.FormatBytes(snap.Peak),
		AverageFormatted: bandwidth.FormatBytes(int64(snap.Average)),
	}
	if snap.LastUpdated != nil {
		resp.LastUpdatedText = bandwidth.FormatLastUpdated(*snap.LastUpdated, h.now())
	}
	return resp
}

// lookupProxy resolves the {id} path parameter. With an empty inventory
// every id is accepted.
func (h *Handler) lookupProxy(r *http.Request) (string, *models.Proxy, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", nil, false
	}
	if len(h.cfg.Proxies) == 0 {
		return id, nil, true
	}
	p, ok := h.cfg.ProxyByID(id)
	if !ok {
		return id, nil, false
	}
	return id, &p, true
}

// settledSnapshot acquires the poller for the request and waits for its first
// result. The poller is released on return and lives on until the idle sweep.
func (h *Handler) settledSnapshot(ctx context.Context, proxyID string, tr models.TimeRange) (poller.Snapshot, error) {
	p, release := h.pollers.Acquire(proxyID, tr)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, h.firstResultTimeout())
	defer cancel()
	return p.Await(ctx)
}

// proxySnapshot is the shared front half of the bandwidth handlers. It writes
// the error response itself and reports whether the caller should continue.
func (h *Handler) proxySnapshot(rw *ResponseWriter, r *http.Request) (poller.Snapshot, *models.Proxy, bool) {
	id, proxy, ok := h.lookupProxy(r)
	if !ok {
		rw.NotFound(fmt.Sprintf("proxy %q not found", id))
		return poller.Snapshot{}, nil, false
	}
	tr, err := rangeFromQuery(r, h.now())
	if err != nil {
		writeError(rw, err)
		return poller.Snapshot{}, nil, false
	}

	snap, err := h.settledSnapshot(r.Context(), id, tr)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return snap, proxy, true
		}
		// Client went away.
		return snap, proxy, false
	}
	if snap.State == poller.StateError {
		logging.Ctx(r.Context()).Warn().
			Str("proxy_id", sanitizeLogValue(id)).
			Str("range", tr.Key()).
			Str("error", snap.Error).
			Msg("Bandwidth fetch failed")
		rw.ServiceUnavailable("bandwidth data unavailable", map[string]interface{}{
			"proxyId": id,
			"error":   snap.Error,
		})
		return snap, proxy, false
	}
	return snap, proxy, true
}

// Bandwidth handles GET /api/v1/proxies/{id}/bandwidth. A poller that has
// not settled within the first result timeout answers 202 with its loading
// snapshot.
func (h *Handler) Bandwidth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	snap, proxy, ok := h.proxySnapshot(rw, r)
	if !ok {
		return
	}
	if !snap.Settled() {
		rw.Accepted(h.describe(snap, proxy))
		return
	}
	rw.Success(h.describe(snap, proxy))
}

// RefreshBandwidth handles POST /api/v1/proxies/{id}/bandwidth/refresh.
func (h *Handler) RefreshBandwidth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id, proxy, ok := h.lookupProxy(r)
	if !ok {
		rw.NotFound(fmt.Sprintf("proxy %q not found", id))
		return
	}
	tr, err := rangeFromQuery(r, h.now())
	if err != nil {
		writeError(rw, err)
		return
	}

	p, release := h.pollers.Acquire(id, tr)
	defer release()
	if err := p.Refresh(); err != nil {
		rw.ServiceUnavailable("poller is not running", nil)
		return
	}
	rw.Accepted(h.describe(p.Snapshot(), proxy))
}

// BandwidthChart handles GET /api/v1/proxies/{id}/bandwidth/chart.png.
func (h *Handler) BandwidthChart(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	width, err := intQuery(r, "width")
	if err != nil {
		writeError(rw, err)
		return
	}
	height, err := intQuery(r, "height")
	if err != nil {
		writeError(rw, err)
		return
	}
	for name, v := range map[string]int{"width": width, "height": height} {
		if v > chart.MaxDimension {
			writeError(rw, &paramError{Field: name, Reason: fmt.Sprintf("must not exceed %d", chart.MaxDimension)})
			return
		}
	}

	snap, _, ok := h.proxySnapshot(rw, r)
	if !ok {
		return
	}

	key := fmt.Sprintf("%s|%s|%d|%dx%d", snap.ProxyID, snap.Range.Key(), snap.Version, width, height)
	png, hit := h.charts.Get(key)
	if !hit {
		png, err = chart.RenderPNG(snap.Samples, snap.Range.Token, width, height)
		if err != nil {
			rw.InternalError(err)
			return
		}
		if snap.Settled() {
			h.charts.Add(key, png)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	if hit {
		w.Header().Set("X-Chart-Cache", "hit")
	} else {
		w.Header().Set("X-Chart-Cache", "miss")
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Chart write aborted")
	}
}
