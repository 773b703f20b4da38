// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package export

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/models"
)

var testInventory = []models.Proxy{
	{ID: "edge-1", Name: "Edge One", Region: "eu-west", Category: "live", CostPerGB: 0.05},
	{ID: "edge-2", Name: "Edge Two", Region: "us-east", Category: "vod", CostPerGB: 0.08},
	{ID: "edge-3", Name: "Edge Three", Region: "EU-West", Category: "vod", CostPerGB: 0.04},
}

type fakeSeries struct {
	mu       sync.Mutex
	fallback bool
	err      error
	ranges   []models.TimeRange
}

func (f *fakeSeries) Fetch(_ context.Context, _ string, r models.TimeRange) (bandwidth.Result, error) {
	f.mu.Lock()
	f.ranges = append(f.ranges, r)
	f.mu.Unlock()
	if f.err != nil {
		return bandwidth.Result{}, f.err
	}
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli()
	samples := []models.BandwidthSample{
		{Timestamp: start, BytesTransferred: 1_000_000},
		{Timestamp: start + 3_600_000, BytesTransferred: 3_000_000},
		{Timestamp: start + 7_200_000, BytesTransferred: 2_000_000},
	}
	return bandwidth.Result{Samples: samples, Interval: time.Hour, Fallback: f.fallback}, nil
}

type captureReporter struct {
	progress []int
	artifact *Artifact
	failure  string
}

func (r *captureReporter) Advance(p int)       { r.progress = append(r.progress, p) }
func (r *captureReporter) Complete(a Artifact) { r.artifact = &a }
func (r *captureReporter) Fail(msg string)     { r.failure = msg }

func testJob(opts models.ExportOptions) models.ExportJob {
	if opts.TimeRange.Token == "" {
		opts.TimeRange = models.Preset(models.Range24h)
	}
	return models.ExportJob{
		ID:        "job-1",
		Name:      "test export",
		Type:      opts.Type,
		DataType:  opts.DataType,
		Status:    models.StatusPending,
		CreatedAt: time.Date(2024, 1, 10, 12, 30, 45, 0, time.UTC),
		Options:   opts,
	}
}

func runBackend(t *testing.T, src SeriesSource, opts models.ExportOptions) (*captureReporter, []byte) {
	t.Helper()
	b, err := NewLocalBackend(src, LocalBackendConfig{
		OutputDir: filepath.Join(t.TempDir(), "exports"),
		Proxies:   testInventory,
		Now:       func() time.Time { return time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	rep := &captureReporter{}
	if err := b.Run(context.Background(), testJob(opts), rep); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.artifact == nil {
		t.Fatal("backend did not complete")
	}
	data, err := os.ReadFile(rep.artifact.Path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	return rep, data
}

func TestLocalBackendCSV(t *testing.T) {
	rep, data := runBackend(t, &fakeSeries{}, models.ExportOptions{Type: models.ExportCSV, DataType: models.DataUsage})

	if diff := cmp.Diff([]int{ProgressResolved, ProgressFetched, ProgressRendered, ProgressWritten}, rep.progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	a := rep.artifact
	if a.FileName != "proxywatch-usage-20240110-123045.csv" || a.ContentType != "text/csv" || a.DownloadURL != DownloadURL("job-1") {
		t.Errorf("artifact = %+v", a)
	}
	if a.FileSize == "" {
		t.Error("FileSize empty")
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if rows[0][0] != "# Usage" {
		t.Errorf("first row = %v", rows[0])
	}
	if rows[1][0] != "Proxy ID" || len(rows) != 2+len(testInventory) {
		t.Errorf("rows = %v", rows)
	}
	if rows[2][0] != "edge-1" || rows[2][4] != "6000000" {
		t.Errorf("edge-1 row = %v", rows[2])
	}
}

func TestLocalBackendCSVAllSections(t *testing.T) {
	_, data := runBackend(t, &fakeSeries{fallback: true}, models.ExportOptions{
		Type: models.ExportCSV, DataType: models.DataAll, IncludeRawData: true,
		Filters: models.ExportFilters{ProxyID: "edge-2"},
	})
	text := string(data)
	for _, section := range []string{"# Estimated data", "# Usage", "# Performance", "# Costs", "# Raw Data"} {
		if !strings.Contains(text, section) {
			t.Errorf("missing section %q", section)
		}
	}
	if strings.Contains(text, "edge-1") {
		t.Error("filtered proxy exported")
	}
}

func TestLocalBackendJSON(t *testing.T) {
	_, data := runBackend(t, &fakeSeries{}, models.ExportOptions{
		Type: models.ExportJSON, DataType: models.DataCosts, IncludeRawData: true,
		Filters: models.ExportFilters{ProxyID: "edge-1"},
	})

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Proxies) != 1 {
		t.Fatalf("proxies = %d", len(doc.Proxies))
	}
	p := doc.Proxies[0]
	if p.Usage != nil || p.Performance != nil {
		t.Error("costs export carries other sections")
	}
	want := &jsonCosts{TotalGB: 0.006, CostPerGB: 0.05, Cost: 0}
	if diff := cmp.Diff(want, p.Costs); diff != "" {
		t.Errorf("costs mismatch (-want +got):\n%s", diff)
	}
	if len(p.Samples) != 3 || p.Samples[1].BytesTransferred != 3_000_000 {
		t.Errorf("samples = %+v", p.Samples)
	}
}

func TestLocalBackendPDF(t *testing.T) {
	_, data := runBackend(t, &fakeSeries{}, models.ExportOptions{
		Type: models.ExportPDF, DataType: models.DataPerformance, IncludeCharts: true,
	})
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("artifact is not a PDF: %q", data[:min(8, len(data))])
	}
}

func TestLocalBackendExcel(t *testing.T) {
	_, data := runBackend(t, &fakeSeries{fallback: true}, models.ExportOptions{
		Type: models.ExportExcel, DataType: models.DataAll, IncludeCharts: true,
	})
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	want := []string{"Usage", "Performance", "Costs", "Charts", "Notes"}
	if diff := cmp.Diff(want, f.GetSheetList()); diff != "" {
		t.Errorf("sheets mismatch (-want +got):\n%s", diff)
	}
	id, err := f.GetCellValue("Usage", "A2")
	if err != nil || id != "edge-1" {
		t.Errorf("Usage!A2 = %q, %v", id, err)
	}
}

func TestLocalBackendCompression(t *testing.T) {
	rep, data := runBackend(t, &fakeSeries{}, models.ExportOptions{
		Type: models.ExportJSON, DataType: models.DataUsage, Compression: true,
	})
	if !strings.HasSuffix(rep.artifact.FileName, ".json.gz") || rep.artifact.ContentType != "application/gzip" {
		t.Errorf("artifact = %+v", rep.artifact)
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	var doc jsonDocument
	if err := json.Unmarshal(plain, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Proxies) != len(testInventory) {
		t.Errorf("proxies = %d", len(doc.Proxies))
	}
}

func TestLocalBackendDateRangeOverridesRange(t *testing.T) {
	src := &fakeSeries{}
	runBackend(t, src, models.ExportOptions{
		Type: models.ExportCSV, DataType: models.DataUsage,
		TimeRange: models.Preset(models.Range7d),
		Filters: models.ExportFilters{
			ProxyID:   "edge-1",
			DateRange: &models.CustomDateRange{Start: "2024-01-01", End: "2024-01-05"},
		},
	})
	if diff := cmp.Diff([]models.TimeRange{models.Custom("2024-01-01", "2024-01-05")}, src.ranges); diff != "" {
		t.Errorf("fetched ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestLocalBackendErrors(t *testing.T) {
	b, err := NewLocalBackend(&fakeSeries{err: errors.New("upstream down")}, LocalBackendConfig{
		OutputDir: t.TempDir(),
		Proxies:   testInventory,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = b.Run(context.Background(), testJob(models.ExportOptions{Type: models.ExportCSV, DataType: models.DataUsage}), &captureReporter{})
	if err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("fetch error = %v", err)
	}

	err = b.Run(context.Background(), testJob(models.ExportOptions{
		Type: models.ExportCSV, DataType: models.DataUsage,
		Filters: models.ExportFilters{Region: "ap-south"},
	}), &captureReporter{})
	if !errors.Is(err, ErrNoProxies) {
		t.Errorf("empty selection err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, _ := NewLocalBackend(&fakeSeries{}, LocalBackendConfig{OutputDir: t.TempDir(), Proxies: testInventory})
	if err := ok.Run(ctx, testJob(models.ExportOptions{Type: models.ExportCSV, DataType: models.DataUsage}), &captureReporter{}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled run err = %v", err)
	}
}

func TestManagerWithLocalBackend(t *testing.T) {
	b, err := NewLocalBackend(&fakeSeries{}, LocalBackendConfig{OutputDir: t.TempDir(), Proxies: testInventory})
	if err != nil {
		t.Fatal(err)
	}
	m := newTestManager(t, b, ManagerConfig{})
	job, err := m.Create(context.Background(), models.ExportOptions{Type: models.ExportExcel, DataType: models.DataUsage})
	if err != nil {
		t.Fatal(err)
	}
	done := waitTerminal(t, m, job.ID)
	if done.Status != models.StatusCompleted || *done.Progress != 100 || done.FileSize == "" {
		t.Fatalf("job = %+v", done)
	}
	dl, err := m.Download(job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dl.Path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestSelectProxies(t *testing.T) {
	ids := func(ps []models.Proxy) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}
	tests := []struct {
		name    string
		filters models.ExportFilters
		want    []string
	}{
		{"no filters", models.ExportFilters{}, []string{"edge-1", "edge-2", "edge-3"}},
		{"region case-insensitive", models.ExportFilters{Region: "eu-west"}, []string{"edge-1", "edge-3"}},
		{"region and category", models.ExportFilters{Region: "eu-west", Category: "VOD"}, []string{"edge-3"}},
		{"known proxy", models.ExportFilters{ProxyID: "edge-2"}, []string{"edge-2"}},
		{"unknown proxy alone", models.ExportFilters{ProxyID: "adhoc"}, []string{"adhoc"}},
		{"unknown proxy with region", models.ExportFilters{ProxyID: "adhoc", Region: "eu-west"}, nil},
		{"no match", models.ExportFilters{Category: "radio"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(SelectProxies(testInventory, tt.filters))); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArtifactName(t *testing.T) {
	job := testJob(models.ExportOptions{Type: models.ExportExcel, DataType: models.DataCosts, Compression: true})
	if got := ArtifactName(job); got != "proxywatch-costs-20240110-123045.xlsx.gz" {
		t.Errorf("ArtifactName = %q", got)
	}
}
