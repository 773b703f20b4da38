// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package models

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestComputeStats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []BandwidthSample
		want    BandwidthStats
	}{
		{"empty", nil, BandwidthStats{}},
		{"single", []BandwidthSample{{1, 500}}, BandwidthStats{Total: 500, Average: 500, Peak: 500, Count: 1}},
		{"several", []BandwidthSample{{1, 100}, {2, 300}, {3, 200}}, BandwidthStats{Total: 600, Average: 200, Peak: 300, Count: 3}},
		{"all zero", []BandwidthSample{{1, 0}, {2, 0}}, BandwidthStats{Count: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if diff := cmp.Diff(tt.want, ComputeStats(tt.samples)); diff != "" {
				t.Errorf("ComputeStats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTimeRangeToken(t *testing.T) {
	t.Parallel()

	for _, tok := range PresetTokens {
		if !tok.Valid() {
			t.Errorf("%s should be valid", tok)
		}
		if tok.Window() <= 0 {
			t.Errorf("%s should have a window", tok)
		}
	}
	if !RangeCustom.Valid() {
		t.Error("custom should be valid")
	}
	if TimeRangeToken("2w").Valid() {
		t.Error("2w should be invalid")
	}
	if RangeCustom.Window() != 0 {
		t.Error("custom has no fixed window")
	}
}

func TestCustomDateRangeBounds(t *testing.T) {
	t.Parallel()

	start, end, err := CustomDateRange{Start: "2024-01-01", End: "2024-01-10"}.Bounds()
	if err != nil {
		t.Fatalf("Bounds: %v", err)
	}
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2024, 1, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}

	if _, _, err := (CustomDateRange{Start: "01/02/2024", End: "2024-01-10"}).Bounds(); err == nil {
		t.Error("expected parse error for malformed start")
	}
}

func TestTimeRangeKey(t *testing.T) {
	t.Parallel()

	if got := (TimeRange{}).Key(); got != "24h" {
		t.Errorf("zero range key = %q, want 24h", got)
	}
	if got := Preset(Range7d).Key(); got != "7d" {
		t.Errorf("7d key = %q", got)
	}
	if got := Custom("2024-01-01", "2024-01-10").Key(); got != "custom:2024-01-01..2024-01-10" {
		t.Errorf("custom key = %q", got)
	}
}

func TestExportOptionsCloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := ExportOptions{
		Type:      ExportCSV,
		DataType:  DataUsage,
		TimeRange: Custom("2024-01-01", "2024-01-02"),
		Filters:   ExportFilters{DateRange: &CustomDateRange{Start: "2024-02-01", End: "2024-02-02"}},
	}
	clone := orig.Clone()
	clone.TimeRange.Custom.Start = "1999-01-01"
	clone.Filters.DateRange.End = "1999-01-02"

	if orig.TimeRange.Custom.Start != "2024-01-01" || orig.Filters.DateRange.End != "2024-02-02" {
		t.Error("mutating the clone changed the original")
	}
}

func TestExportJobClone(t *testing.T) {
	t.Parallel()

	p := 40
	now := time.Now()
	job := &ExportJob{ID: "j1", Progress: &p, CompletedAt: &now}
	c := job.Clone()
	*c.Progress = 90
	if *job.Progress != 40 {
		t.Error("clone shares progress pointer")
	}
	if c.CompletedAt == job.CompletedAt {
		t.Error("clone shares completedAt pointer")
	}
}

func TestExportTypeFile(t *testing.T) {
	t.Parallel()

	if ExportExcel.Extension() != "xlsx" || ExportCSV.Extension() != "csv" {
		t.Error("unexpected extensions")
	}
	if ExportPDF.ContentType() != "application/pdf" {
		t.Errorf("pdf content type = %s", ExportPDF.ContentType())
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() || StatusProcessing.Terminal() {
		t.Error("unexpected terminal states")
	}
}
