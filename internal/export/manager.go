// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package export runs asynchronous analytics exports.
//
// The Manager owns every ExportJob. A job is created pending, moves to
// processing on its first progress report and ends completed or failed.
// CompletedAt is set once, on entering a terminal state, and every later
// transition on a terminal job is a silent no-op, so duplicate deliveries are
// harmless. A job never stays non-terminal without progress: backend errors,
// backends returning without a result, panics and the watchdog all fail it.
//
// Delete removes a job whatever its state and cancels its context. Reports
// arriving for a removed job are ignored.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/proxywatch/internal/eventbus"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
	"github.com/tomtom215/proxywatch/internal/timerange"
	"github.com/tomtom215/proxywatch/internal/validation"
)

var (
	ErrNotFound       = errors.New("export job not found")
	ErrNotReady       = errors.New("export job not completed")
	ErrInvalidOptions = errors.New("invalid export options")
	ErrTooManyJobs    = errors.New("too many active export jobs")
)

const (
	defaultFailure  = "export failed"
	noResultFailure = "export ended without result"
	restartFailure  = "interrupted by restart"
)

// Artifact is what a finished backend hands back.
type Artifact struct {
	DownloadURL string
	FileSize    string
	Path        string
	FileName    string
	ContentType string
}

// Download locates a completed job's artifact. Path is set for files the
// service holds; URL is set when the backend published the artifact elsewhere.
type Download struct {
	Path        string
	URL         string
	FileName    string
	ContentType string
}

// Reporter is the backend's handle on its own job.
type Reporter interface {
	Advance(progress int)
	Complete(a Artifact)
	Fail(msg string)
}

// Backend performs the export work for one job.
type Backend interface {
	Run(ctx context.Context, job models.ExportJob, r Reporter) error
}

// Publisher receives job events.
type Publisher interface {
	PublishJob(ctx context.Context, ev eventbus.JobEvent) error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	JobTimeout       time.Duration
	WatchdogInterval time.Duration
	MaxJobs          int
	Store            Store
	Publisher        Publisher
	Now              func() time.Time
}

type tracked struct {
	rec          Record
	cancel       context.CancelFunc
	lastActivity time.Time
}

// Manager tracks export jobs and drives their backend.
type Manager struct {
	backend Backend
	cfg     ManagerConfig

	mu   sync.Mutex
	jobs map[string]*tracked

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager and restores persisted jobs. Jobs that were
// still running when the process stopped are marked failed.
func NewManager(backend Backend, cfg ManagerConfig) (*Manager, error) {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 30 * time.Second
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 500
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		backend: backend,
		cfg:     cfg,
		jobs:    make(map[string]*tracked),
		ctx:     ctx,
		cancel:  cancel,
	}

	records, err := cfg.Store.LoadAll()
	if err != nil {
		cancel()
		return nil, err
	}
	now := cfg.Now()
	for _, rec := range records {
		if !rec.Job.Status.Terminal() {
			rec.Job.Status = models.StatusFailed
			rec.Job.Error = restartFailure
			rec.Job.CompletedAt = &now
			rec.Job.UpdatedAt = now
			if err := cfg.Store.Save(rec); err != nil {
				logging.Warn().Err(err).Str("job_id", rec.Job.ID).Msg("Failed to persist restart failure")
			}
		}
		m.jobs[rec.Job.ID] = &tracked{rec: rec, lastActivity: rec.Job.UpdatedAt}
	}
	if len(records) > 0 {
		logging.Info().Int("jobs", len(records)).Msg("Restored export jobs")
	}
	return m, nil
}

// Create validates opts, registers a pending job, starts the backend and
// returns immediately.
func (m *Manager) Create(ctx context.Context, opts models.ExportOptions) (models.ExportJob, error) {
	opts = opts.Clone()
	if opts.TimeRange.Token == "" {
		opts.TimeRange = models.Preset(models.DefaultRange)
	}
	if err := validateOptions(&opts); err != nil {
		return models.ExportJob{}, err
	}

	now := m.cfg.Now()
	job := models.ExportJob{
		ID:        uuid.NewString(),
		Name:      jobName(opts, now),
		Type:      opts.Type,
		DataType:  opts.DataType,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Options:   opts,
	}

	jobCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	if !m.makeRoomLocked() {
		m.mu.Unlock()
		cancel()
		return models.ExportJob{}, ErrTooManyJobs
	}
	t := &tracked{rec: Record{Job: job}, cancel: cancel, lastActivity: now}
	m.jobs[job.ID] = t
	m.persistLocked(t)
	snapshot := t.rec.Job.Clone()
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.ExportJobsActive.Inc()
	metrics.RecordExportTransition(string(job.Type), string(job.Status), 0)
	m.publish(ctx, eventbus.JobCreated, snapshot)

	logging.Ctx(ctx).Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("data_type", string(job.DataType)).
		Str("range", opts.TimeRange.Key()).
		Msg("Export job created")

	go m.run(jobCtx, cancel, snapshot.Clone())
	return snapshot, nil
}

func validateOptions(opts *models.ExportOptions) error {
	if verr := validation.ValidateStruct(opts); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, verr)
	}
	if opts.TimeRange.Token == models.RangeCustom {
		if opts.TimeRange.Custom == nil {
			return fmt.Errorf("%w: %w", ErrInvalidOptions, &timerange.ValidationError{Field: "timeRange", Reason: "custom requires start and end dates"})
		}
		if err := timerange.ValidateCustom(*opts.TimeRange.Custom); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	if dr := opts.Filters.DateRange; dr != nil {
		if err := timerange.ValidateCustom(*dr); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
	}
	return nil
}

func jobName(opts models.ExportOptions, now time.Time) string {
	dt := string(opts.DataType)
	if dt != "" {
		dt = strings.ToUpper(dt[:1]) + dt[1:]
	}
	return fmt.Sprintf("%s %s export (%s) %s",
		dt, strings.ToUpper(string(opts.Type)), opts.TimeRange.String(), now.UTC().Format("2006-01-02 15:04"))
}

// makeRoomLocked evicts the oldest terminal jobs until a new job fits.
func (m *Manager) makeRoomLocked() bool {
	for len(m.jobs) >= m.cfg.MaxJobs {
		var oldest *tracked
		for _, t := range m.jobs {
			if !t.rec.Job.Status.Terminal() {
				continue
			}
			if oldest == nil || t.rec.Job.CreatedAt.Before(oldest.rec.Job.CreatedAt) {
				oldest = t
			}
		}
		if oldest == nil {
			return false
		}
		m.removeLocked(oldest)
	}
	return true
}

func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, job models.ExportJob) {
	defer m.wg.Done()
	defer cancel()

	err := m.invoke(ctx, job)

	switch {
	case err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled):
		_ = m.Fail(job.ID, "export cancelled")
	case err != nil:
		_ = m.Fail(job.ID, err.Error())
	default:
		// no-op when the backend already reported a terminal state
		_ = m.Fail(job.ID, noResultFailure)
	}
}

func (m *Manager) invoke(ctx context.Context, job models.ExportJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("job_id", job.ID).Interface("panic", r).Msg("Export backend panicked")
			err = fmt.Errorf("export panicked: %v", r)
		}
	}()
	return m.backend.Run(ctx, job, &jobReporter{m: m, id: job.ID})
}

// Advance records progress. The first report moves a pending job to
// processing. Progress is clamped to [0,100] and never decreases.
func (m *Manager) Advance(id string, progress int) error {
	progress = min(max(progress, 0), 100)
	return m.transition(id, eventbus.JobProgress, func(job *models.ExportJob) {
		if job.Status == models.StatusPending {
			job.Status = models.StatusProcessing
		}
		if job.Progress == nil || progress > *job.Progress {
			job.Progress = &progress
		}
	}, nil)
}

// Complete moves the job to completed with its artifact.
func (m *Manager) Complete(id string, a Artifact) error {
	return m.transition(id, eventbus.JobCompleted, func(job *models.ExportJob) {
		hundred := 100
		job.Status = models.StatusCompleted
		job.Progress = &hundred
		job.FileSize = a.FileSize
		job.DownloadURL = a.DownloadURL
		if job.DownloadURL == "" {
			job.DownloadURL = DownloadURL(id)
		}
	}, func(rec *Record) {
		rec.ArtifactPath = a.Path
		rec.FileName = a.FileName
		rec.ContentType = a.ContentType
	})
}

// Fail moves the job to failed. An empty message becomes "export failed".
func (m *Manager) Fail(id, msg string) error {
	if strings.TrimSpace(msg) == "" {
		msg = defaultFailure
	}
	return m.transition(id, eventbus.JobFailed, func(job *models.ExportJob) {
		job.Status = models.StatusFailed
		job.Error = msg
	}, nil)
}

// DownloadURL is the API path serving a job's artifact.
func DownloadURL(id string) string {
	return "/api/v1/exports/" + id + "/download"
}

// transition applies fn to a non-terminal job. Terminal jobs are left alone
// and no error is returned.
func (m *Manager) transition(id string, kind eventbus.JobEventKind, fn func(*models.ExportJob), rec func(*Record)) error {
	now := m.cfg.Now()

	m.mu.Lock()
	t, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	job := &t.rec.Job
	if job.Status.Terminal() {
		m.mu.Unlock()
		return nil
	}

	prev := job.Status
	fn(job)
	job.UpdatedAt = now
	t.lastActivity = now
	if rec != nil {
		rec(&t.rec)
	}
	terminal := job.Status.Terminal()
	if terminal {
		job.CompletedAt = &now
		if t.cancel != nil {
			t.cancel()
		}
	}
	m.persistLocked(t)
	snapshot := job.Clone()
	m.mu.Unlock()

	if terminal {
		metrics.ExportJobsActive.Dec()
		metrics.RecordExportTransition(string(snapshot.Type), string(snapshot.Status), now.Sub(snapshot.CreatedAt))
		logging.Info().
			Str("job_id", id).
			Str("status", string(snapshot.Status)).
			Str("error", snapshot.Error).
			Msg("Export job finished")
	} else if prev != snapshot.Status {
		metrics.RecordExportTransition(string(snapshot.Type), string(snapshot.Status), now.Sub(snapshot.CreatedAt))
	}
	m.publish(context.Background(), kind, snapshot)
	return nil
}

func (m *Manager) persistLocked(t *tracked) {
	if err := m.cfg.Store.Save(t.rec); err != nil {
		logging.Warn().Err(err).Str("job_id", t.rec.Job.ID).Msg("Failed to persist export job")
	}
}

func (m *Manager) publish(ctx context.Context, kind eventbus.JobEventKind, job models.ExportJob) {
	if m.cfg.Publisher == nil {
		return
	}
	if err := m.cfg.Publisher.PublishJob(ctx, eventbus.JobEvent{Kind: kind, Job: job, OccurredAt: m.cfg.Now()}); err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Str("kind", string(kind)).Msg("Failed to publish job event")
	}
}

// Get returns a copy of one job.
func (m *Manager) Get(id string) (models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.jobs[id]
	if !ok {
		return models.ExportJob{}, ErrNotFound
	}
	return t.rec.Job.Clone(), nil
}

// List returns copies of every job, newest first.
func (m *Manager) List() []models.ExportJob {
	m.mu.Lock()
	out := make([]models.ExportJob, 0, len(m.jobs))
	for _, t := range m.jobs {
		out = append(out, t.rec.Job.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Download returns the artifact of a completed job.
func (m *Manager) Download(id string) (Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.jobs[id]
	if !ok {
		return Download{}, ErrNotFound
	}
	if t.rec.Job.Status != models.StatusCompleted {
		return Download{}, ErrNotReady
	}
	dl := Download{Path: t.rec.ArtifactPath, FileName: t.rec.FileName, ContentType: t.rec.ContentType}
	if dl.Path == "" && t.rec.Job.DownloadURL != DownloadURL(id) {
		dl.URL = t.rec.Job.DownloadURL
	}
	return dl, nil
}

// Delete removes a job in any state, cancels its work and removes its file.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	t, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	wasActive := !t.rec.Job.Status.Terminal()
	m.removeLocked(t)
	snapshot := t.rec.Job.Clone()
	m.mu.Unlock()

	if wasActive {
		metrics.ExportJobsActive.Dec()
	}
	m.publish(context.Background(), eventbus.JobDeleted, snapshot)
	logging.Info().Str("job_id", id).Bool("was_active", wasActive).Msg("Export job deleted")
	return nil
}

// removeLocked drops t from the map and store and cleans up its artifact.
func (m *Manager) removeLocked(t *tracked) {
	id := t.rec.Job.ID
	delete(m.jobs, id)
	if t.cancel != nil {
		t.cancel()
	}
	if err := m.cfg.Store.Delete(id); err != nil {
		logging.Warn().Err(err).Str("job_id", id).Msg("Failed to delete export job record")
	}
	if t.rec.ArtifactPath != "" {
		if err := os.Remove(t.rec.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Warn().Err(err).Str("path", t.rec.ArtifactPath).Msg("Failed to remove export artifact")
		}
	}
}

// Sweep fails every non-terminal job without activity for the job timeout.
// It returns how many jobs were failed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	var stale []string
	for id, t := range m.jobs {
		if !t.rec.Job.Status.Terminal() && now.Sub(t.lastActivity) >= m.cfg.JobTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	failed := 0
	for _, id := range stale {
		job, err := m.Get(id)
		if err != nil || job.Status.Terminal() {
			continue
		}
		if err := m.Fail(id, fmt.Sprintf("export timed out after %s without progress", m.cfg.JobTimeout)); err == nil {
			metrics.ExportWatchdogFailures.Inc()
			failed++
		}
	}
	if failed > 0 {
		logging.Warn().Int("jobs", failed).Msg("Watchdog failed stalled export jobs")
	}
	return failed
}

// Serve runs the watchdog until ctx ends. It implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(m.cfg.Now())
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (m *Manager) String() string { return "export-watchdog" }

// Close cancels running jobs, waits for their goroutines and closes the store.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return m.cfg.Store.Close()
}

type jobReporter struct {
	m  *Manager
	id string
}

func (r *jobReporter) Advance(progress int) { _ = r.m.Advance(r.id, progress) }
func (r *jobReporter) Complete(a Artifact)  { _ = r.m.Complete(r.id, a) }
func (r *jobReporter) Fail(msg string)      { _ = r.m.Fail(r.id, msg) }
