// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/models"
	"github.com/tomtom215/proxywatch/internal/timerange"
)

// rangeRequest is the body of POST /time-ranges/normalize.
type rangeRequest struct {
	Token       models.TimeRangeToken `json:"token"`
	Start       string                `json:"start"`
	End         string                `json:"end"`
	QuickFilter timerange.QuickFilter `json:"quickFilter"`
}

// resolve turns a request into a normalized range. A quick filter wins over
// token and dates.
func (rr rangeRequest) resolve(now time.Time) (models.TimeRange, error) {
	if rr.QuickFilter != "" {
		dr, err := timerange.Resolve(rr.QuickFilter, now)
		if err != nil {
			return models.TimeRange{}, err
		}
		return models.Custom(dr.Start, dr.End), nil
	}
	return timerange.Normalize(rr.Token, rr.Start, rr.End)
}

// rangeFromQuery reads range, start, end and quickFilter query parameters.
func rangeFromQuery(r *http.Request, now time.Time) (models.TimeRange, error) {
	q := r.URL.Query()
	return rangeRequest{
		Token:       models.TimeRangeToken(q.Get("range")),
		Start:       q.Get("start"),
		End:         q.Get("end"),
		QuickFilter: timerange.QuickFilter(q.Get("quickFilter")),
	}.resolve(now)
}

// timeRangesResponse lists what pickers can offer.
type timeRangesResponse struct {
	Default      models.TimeRangeToken   `json:"default"`
	Presets      []timerange.Option      `json:"presets"`
	QuickFilters []timerange.QuickFilter `json:"quickFilters"`
}

// TimeRanges handles GET /api/v1/time-ranges.
func (h *Handler) TimeRanges(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(timeRangesResponse{
		Default:      models.DefaultRange,
		Presets:      timerange.Presets(),
		QuickFilters: timerange.QuickFilters,
	})
}

// NormalizeTimeRange handles POST /api/v1/time-ranges/normalize.
func (h *Handler) NormalizeTimeRange(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req rangeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	tr, err := req.resolve(h.now())
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Rejected time range")
		writeError(rw, err)
		return
	}
	rw.Success(tr)
}

// intQuery parses an optional non-negative integer query parameter.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &paramError{Field: name, Reason: "expected a non-negative integer"}
	}
	return v, nil
}
