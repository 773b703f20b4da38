// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/export"
	"github.com/tomtom215/proxywatch/internal/models"
	"github.com/tomtom215/proxywatch/internal/poller"
	ws "github.com/tomtom215/proxywatch/internal/websocket"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

const allowedOrigin = "https://dash.example"

type staticSource struct{}

func (staticSource) Fetch(_ context.Context, proxyID string, _ models.TimeRange) (bandwidth.Result, error) {
	if proxyID == "broken" {
		return bandwidth.Result{}, errors.New("upstream down")
	}
	return bandwidth.Result{
		Samples: []models.BandwidthSample{
			{Timestamp: 1_704_880_800_000, BytesTransferred: 42},
			{Timestamp: 1_704_884_400_000, BytesTransferred: 58},
		},
		Interval: time.Hour,
	}, nil
}

// idleScheduler never fires; tests only see the immediate fetch.
type idleScheduler struct{}

func (idleScheduler) Every(time.Duration, func()) func() { return func() {} }

// fileBackend writes a one-line artifact, or holds the job until cancelled
// at 10% when the proxy filter is "hold".
const remoteArtifactURL = "https://exports.example/abc.csv"

type fileBackend struct {
	dir string
}

func (b fileBackend) Run(ctx context.Context, job models.ExportJob, r export.Reporter) error {
	if job.Options.Filters.ProxyID == "hold" {
		r.Advance(10)
		<-ctx.Done()
		return ctx.Err()
	}
	if job.Options.Filters.ProxyID == "remote" {
		r.Complete(export.Artifact{DownloadURL: remoteArtifactURL, FileSize: "2.1 MB"})
		return nil
	}
	name := job.ID + "." + job.Type.Extension()
	path := filepath.Join(b.dir, name)
	if err := os.WriteFile(path, []byte("proxy,total\nedge-1,100\n"), 0o600); err != nil {
		return err
	}
	r.Complete(export.Artifact{
		Path:        path,
		FileName:    name,
		ContentType: job.Type.ContentType(),
		FileSize:    "23 B",
		DownloadURL: export.DownloadURL(job.ID),
	})
	return nil
}

type testEnv struct {
	cfg      *config.Config
	registry *poller.Registry
	manager  *export.Manager
	hub      *ws.Hub
	router   http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			CORSOrigins:       []string{allowedOrigin},
			RateLimitDisabled: true,
		},
		Bandwidth: config.BandwidthConfig{FirstResultTimeout: 2 * time.Second},
		Proxies: []models.Proxy{
			{ID: "edge-1", Name: "Edge One", Region: "eu-west", CostPerGB: 0.05},
			{ID: "broken", Name: "Broken"},
		},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	registry := poller.NewRegistry(staticSource{}, poller.RegistryConfig{
		Poller:  poller.Config{Scheduler: idleScheduler{}, Now: func() time.Time { return testNow }},
		IdleTTL: time.Minute,
	})
	t.Cleanup(registry.StopAll)

	manager, err := export.NewManager(fileBackend{dir: t.TempDir()}, export.ManagerConfig{MaxJobs: 2})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	hub := ws.NewHub()
	h, err := NewHandler(HandlerConfig{
		Config:  cfg,
		Pollers: registry,
		Exports: manager,
		Hub:     hub,
		Now:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	return &testEnv{
		cfg:      cfg,
		registry: registry,
		manager:  manager,
		hub:      hub,
		router:   NewRouter(h, NewChiMiddleware(ChiMiddlewareConfigFrom(cfg))),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\nbody: %s", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestNewHandlerRequiresDependencies(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(HandlerConfig{}); err == nil {
		t.Error("expected error without config")
	}
	if _, err := NewHandler(HandlerConfig{Config: &config.Config{}}); err == nil {
		t.Error("expected error without pollers")
	}
}

func TestTimeRanges(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/time-ranges", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got timeRangesResponse
	decodeEnvelope(t, rec, &got)
	if got.Default != models.Range24h {
		t.Errorf("default = %q", got.Default)
	}
	if len(got.Presets) != len(models.PresetTokens) {
		t.Errorf("presets = %d, want %d", len(got.Presets), len(models.PresetTokens))
	}
	if len(got.QuickFilters) != 6 {
		t.Errorf("quick filters = %v", got.QuickFilters)
	}
}

func TestNormalizeTimeRange(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantKey   string
		wantField string
	}{
		{"preset", `{"token":"7d"}`, http.StatusOK, "7d", ""},
		{"default", `{}`, http.StatusOK, "24h", ""},
		{"preset ignores dates", `{"token":"1h","start":"bad"}`, http.StatusOK, "1h", ""},
		{"custom", `{"token":"custom","start":"2024-01-01","end":"2024-01-05"}`, http.StatusOK, "custom:2024-01-01..2024-01-05", ""},
		{"single day", `{"token":"custom","start":"2024-01-05","end":"2024-01-05"}`, http.StatusOK, "custom:2024-01-05..2024-01-05", ""},
		{"quick filter", `{"quickFilter":"last_week"}`, http.StatusOK, "custom:2023-12-31..2024-01-06", ""},
		{"reversed", `{"token":"custom","start":"2024-01-05","end":"2024-01-01"}`, http.StatusBadRequest, "", "end"},
		{"missing start", `{"token":"custom","end":"2024-01-01"}`, http.StatusBadRequest, "", "start"},
		{"unknown token", `{"token":"2w"}`, http.StatusBadRequest, "", "token"},
		{"unknown filter", `{"quickFilter":"someday"}`, http.StatusBadRequest, "", "quickFilter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodPost, "/api/v1/time-ranges/normalize", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var tr models.TimeRange
			e := decodeEnvelope(t, rec, &tr)
			if tt.wantCode == http.StatusOK {
				if got := tr.Key(); got != tt.wantKey {
					t.Errorf("key = %q, want %q", got, tt.wantKey)
				}
				return
			}
			if e.Error == nil || e.Error.Code != ErrCodeValidation {
				t.Fatalf("error = %+v, want %s", e.Error, ErrCodeValidation)
			}
			details, _ := e.Error.Details.(map[string]interface{})
			if details["field"] != tt.wantField {
				t.Errorf("field = %v, want %s", details["field"], tt.wantField)
			}
		})
	}
}

func TestNormalizeRejectsMalformedBodies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for _, body := range []string{`{"token":`, `{"tok":"7d"}`, `{"token":"7d"}{}`} {
		rec := env.do(t, http.MethodPost, "/api/v1/time-ranges/normalize", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}

	big := `{"token":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	if rec := env.do(t, http.MethodPost, "/api/v1/time-ranges/normalize", big); rec.Code != http.StatusBadRequest {
		t.Errorf("oversized body: status = %d", rec.Code)
	}
}

func TestProxies(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/proxies", "")
	var proxies []models.Proxy
	e := decodeEnvelope(t, rec, &proxies)
	if len(proxies) != 2 || proxies[0].ID != "edge-1" {
		t.Errorf("proxies = %+v", proxies)
	}
	if e.Meta == nil || e.Meta.Count == nil || *e.Meta.Count != 2 {
		t.Errorf("meta count = %+v", e.Meta)
	}
}

func TestBandwidth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/proxies/edge-1/bandwidth?range=7d", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got bandwidthResponse
	decodeEnvelope(t, rec, &got)

	if got.State != poller.StateReady || len(got.Samples) != 2 {
		t.Fatalf("snapshot = %+v", got.Snapshot)
	}
	if got.Total != 100 || got.Peak != 58 || got.Count != 2 {
		t.Errorf("stats = %+v", got.BandwidthStats)
	}
	if got.TotalFormatted != "100 B" || got.PeakFormatted != "58 B" {
		t.Errorf("formatted = %q / %q", got.TotalFormatted, got.PeakFormatted)
	}
	if got.LastUpdatedText != "just now" {
		t.Errorf("last updated = %q", got.LastUpdatedText)
	}
	if got.Proxy == nil || got.Proxy.Name != "Edge One" {
		t.Errorf("proxy = %+v", got.Proxy)
	}
	if got.Range.Key() != "7d" {
		t.Errorf("range = %q", got.Range.Key())
	}

	// Released pollers stay registered until the idle sweep.
	if _, ok := env.registry.Lookup("edge-1", models.Preset(models.Range7d)); !ok {
		t.Error("poller should remain registered after the request")
	}
}

func TestBandwidthErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantErr  string
	}{
		{"unknown proxy", "/api/v1/proxies/nope/bandwidth", http.StatusNotFound, ErrCodeNotFound},
		{"bad range", "/api/v1/proxies/edge-1/bandwidth?range=2w", http.StatusBadRequest, ErrCodeValidation},
		{"bad custom", "/api/v1/proxies/edge-1/bandwidth?range=custom&start=2024-02-01&end=2024-01-01", http.StatusBadRequest, ErrCodeValidation},
		{"fetch failure", "/api/v1/proxies/broken/bandwidth", http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if e := decodeEnvelope(t, rec, nil); e.Error == nil || e.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", e.Error, tt.wantErr)
			}
		})
	}
}

func TestBandwidthAcceptsAnyProxyWithoutInventory(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, func(c *config.Config) { c.Proxies = nil })

	rec := env.do(t, http.MethodGet, "/api/v1/proxies/ad-hoc/bandwidth?quickFilter=today", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got bandwidthResponse
	decodeEnvelope(t, rec, &got)
	if got.Range.Key() != "custom:2024-01-10..2024-01-10" {
		t.Errorf("range = %q", got.Range.Key())
	}
}

func TestRefreshBandwidth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/proxies/edge-1/bandwidth/refresh", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/proxies/nope/bandwidth/refresh", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown proxy: status = %d", rec.Code)
	}
}

func TestBandwidthChart(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/proxies/edge-1/bandwidth/chart.png?width=320&height=200", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("body is not a PNG")
	}

	if got := rec.Header().Get("X-Chart-Cache"); got != "miss" {
		t.Errorf("first render cache = %q, want miss", got)
	}
	again := env.do(t, http.MethodGet, "/api/v1/proxies/edge-1/bandwidth/chart.png?width=320&height=200", "")
	if got := again.Header().Get("X-Chart-Cache"); got != "hit" {
		t.Errorf("second render cache = %q, want hit", got)
	}
	if !bytes.Equal(again.Body.Bytes(), rec.Body.Bytes()) {
		t.Error("cached chart differs from the rendered one")
	}
	if other := env.do(t, http.MethodGet, "/api/v1/proxies/edge-1/bandwidth/chart.png?width=321&height=200", ""); other.Header().Get("X-Chart-Cache") != "miss" {
		t.Error("a different size must render again")
	}

	for _, q := range []string{"width=abc", "height=-1", "width=5000"} {
		rec := env.do(t, http.MethodGet, "/api/v1/proxies/edge-1/bandwidth/chart.png?"+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func waitForStatus(t *testing.T, env *testEnv, id string, want models.ExportStatus) models.ExportJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, err := env.manager.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s status = %s, want %s", id, job.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestExportLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/exports", `{"type":"csv","dataType":"usage","timeRange":{"token":"7d"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var job models.ExportJob
	decodeEnvelope(t, rec, &job)
	if job.ID == "" || job.Status != models.StatusPending {
		t.Fatalf("created job = %+v", job)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/exports/"+job.ID {
		t.Errorf("location = %q", loc)
	}

	done := waitForStatus(t, env, job.ID, models.StatusCompleted)
	if done.DownloadURL != export.DownloadURL(job.ID) {
		t.Errorf("download url = %q", done.DownloadURL)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, "")
	var got models.ExportJob
	decodeEnvelope(t, rec, &got)
	if got.Status != models.StatusCompleted {
		t.Errorf("get status = %s", got.Status)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/exports", "")
	var jobs []models.ExportJob
	decodeEnvelope(t, rec, &jobs)
	if len(jobs) != 1 {
		t.Errorf("list = %d jobs", len(jobs))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID+"/download", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("download status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "attachment") || !strings.Contains(cd, job.ID+".csv") {
		t.Errorf("content disposition = %q", cd)
	}
	if rec.Header().Get("Content-Type") != "text/csv" {
		t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rec.Body.String(), "proxy,total") {
		t.Errorf("body = %q", rec.Body.String())
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/exports/"+job.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/exports/"+job.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d", rec.Code)
	}
}

func TestExportErrors(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown type", `{"type":"docx","dataType":"usage"}`, http.StatusBadRequest, ErrCodeValidation},
		{"missing data type", `{"type":"csv"}`, http.StatusBadRequest, ErrCodeValidation},
		{"bad custom range", `{"type":"csv","dataType":"all","timeRange":{"token":"custom","custom":{"start":"2024-02-01","end":"2024-01-01"}}}`, http.StatusBadRequest, ErrCodeValidation},
		{"unknown field", `{"type":"csv","dataType":"usage","format":"x"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty body", ``, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(t, http.MethodPost, "/api/v1/exports", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if e := decodeEnvelope(t, rec, nil); e.Error == nil || e.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", e.Error, tt.wantErr)
			}
		})
	}
}

func TestExportConflictsAndCapacity(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	held := `{"type":"json","dataType":"all","filters":{"proxyId":"hold"}}`
	var first models.ExportJob
	decodeEnvelope(t, env.do(t, http.MethodPost, "/api/v1/exports", held), &first)
	waitForStatus(t, env, first.ID, models.StatusProcessing)

	rec := env.do(t, http.MethodGet, "/api/v1/exports/"+first.ID+"/download", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("download of running job = %d, want 409", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/exports", held); rec.Code != http.StatusCreated {
		t.Fatalf("second create = %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/exports", held)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("create over capacity = %d, want 503", rec.Code)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/exports/missing/download", ""); rec.Code != http.StatusNotFound {
		t.Errorf("download of missing job = %d", rec.Code)
	}
}

func TestDownloadRedirectsToRemoteArtifact(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var job models.ExportJob
	decodeEnvelope(t, env.do(t, http.MethodPost, "/api/v1/exports", `{"type":"csv","dataType":"usage","filters":{"proxyId":"remote"}}`), &job)
	waitForStatus(t, env, job.ID, models.StatusCompleted)

	rec := env.do(t, http.MethodGet, "/api/v1/exports/"+job.ID+"/download", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("download = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != remoteArtifactURL {
		t.Errorf("Location = %q", loc)
	}
}
