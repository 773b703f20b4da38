// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBandwidthFetch(t *testing.T) {
	tests := []string{"live", "fallback", "error"}

	for _, result := range tests {
		t.Run(result, func(t *testing.T) {
			before := testutil.ToFloat64(BandwidthFetchTotal.WithLabelValues(result))
			RecordBandwidthFetch(result, 25*time.Millisecond)
			after := testutil.ToFloat64(BandwidthFetchTotal.WithLabelValues(result))
			if after != before+1 {
				t.Errorf("%s counter = %v, want %v", result, after, before+1)
			}
		})
	}
}

func TestRecordExportTransition(t *testing.T) {
	before := testutil.ToFloat64(ExportJobsTotal.WithLabelValues("csv", "completed"))
	RecordExportTransition("csv", "processing", 0)
	RecordExportTransition("csv", "completed", 2*time.Second)

	if got := testutil.ToFloat64(ExportJobsTotal.WithLabelValues("csv", "completed")); got != before+1 {
		t.Errorf("completed counter = %v, want %v", got, before+1)
	}
	if n := testutil.CollectAndCount(ExportDuration); n == 0 {
		t.Error("expected export duration observations")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/exports", "200"))
	RecordAPIRequest("GET", "/api/v1/exports", "200", 10*time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/exports", "200")); got != before+1 {
		t.Errorf("api counter = %v, want %v", got, before+1)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active = %v after inc", got)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active = %v after dec", got)
	}
}

func TestRecordEventPublish(t *testing.T) {
	ok := testutil.ToFloat64(EventsPublished.WithLabelValues("jobs", "success"))
	bad := testutil.ToFloat64(EventsPublished.WithLabelValues("jobs", "error"))

	RecordEventPublish("jobs", nil)
	RecordEventPublish("jobs", errors.New("closed"))

	if got := testutil.ToFloat64(EventsPublished.WithLabelValues("jobs", "success")); got != ok+1 {
		t.Errorf("success = %v", got)
	}
	if got := testutil.ToFloat64(EventsPublished.WithLabelValues("jobs", "error")); got != bad+1 {
		t.Errorf("error = %v", got)
	}
}
