// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package export

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/proxywatch/internal/bandwidth"
	"github.com/tomtom215/proxywatch/internal/chart"
	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/models"
)

// Progress reported by LocalBackend at each stage.
const (
	ProgressResolved = 10
	ProgressFetched  = 40
	ProgressRendered = 70
	ProgressWritten  = 90
)

// ErrNoProxies fails exports whose filters match nothing.
var ErrNoProxies = errors.New("no proxies match the export filters")

// SeriesSource fetches one proxy's series. *bandwidth.Source satisfies it.
type SeriesSource interface {
	Fetch(ctx context.Context, proxyID string, r models.TimeRange) (bandwidth.Result, error)
}

// LocalBackendConfig configures LocalBackend.
type LocalBackendConfig struct {
	OutputDir string
	Proxies   []models.Proxy
	Now       func() time.Time
}

// LocalBackend builds export files on local disk.
type LocalBackend struct {
	source SeriesSource
	cfg    LocalBackendConfig
}

// NewLocalBackend creates the output directory if needed.
func NewLocalBackend(source SeriesSource, cfg LocalBackendConfig) (*LocalBackend, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &LocalBackend{source: source, cfg: cfg}, nil
}

// Run implements Backend.
func (b *LocalBackend) Run(ctx context.Context, job models.ExportJob, r Reporter) error {
	opts := job.Options
	proxies := SelectProxies(b.cfg.Proxies, opts.Filters)
	if len(proxies) == 0 {
		return ErrNoProxies
	}
	r.Advance(ProgressResolved)

	tr := opts.TimeRange
	if dr := opts.Filters.DateRange; dr != nil {
		tr = models.Custom(dr.Start, dr.End)
	}

	series := make([]proxySeries, 0, len(proxies))
	for _, p := range proxies {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := b.source.Fetch(ctx, p.ID, tr)
		if err != nil {
			return fmt.Errorf("fetch bandwidth for %s: %w", p.ID, err)
		}
		series = append(series, proxySeries{
			Proxy:    p,
			Samples:  res.Samples,
			Interval: res.Interval,
			Fallback: res.Fallback,
			Stats:    models.ComputeStats(res.Samples),
		})
	}
	r.Advance(ProgressFetched)

	rep := buildReport(job, tr, series, b.cfg.Now())
	if opts.IncludeCharts {
		for _, s := range series {
			png, err := chart.RenderPNG(s.Samples, tr.Token, chart.DefaultWidth, chart.DefaultHeight)
			if err != nil {
				return fmt.Errorf("render chart for %s: %w", s.Proxy.ID, err)
			}
			title := s.Proxy.ID
			if s.Proxy.Name != "" {
				title = s.Proxy.Name + " (" + s.Proxy.ID + ")"
			}
			rep.Charts = append(rep.Charts, ChartImage{ProxyID: s.Proxy.ID, Title: title, PNG: png})
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Advance(ProgressRendered)

	fileName := ArtifactName(job)
	path := filepath.Join(b.cfg.OutputDir, job.ID+"-"+fileName)
	size, err := writeFile(path, opts.Type, opts.Compression, rep)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(path)
		return err
	}
	r.Advance(ProgressWritten)

	contentType := opts.Type.ContentType()
	if opts.Compression {
		contentType = "application/gzip"
	}
	logging.Debug().Str("job_id", job.ID).Str("path", path).Int64("bytes", size).Msg("Export artifact written")

	r.Complete(Artifact{
		DownloadURL: DownloadURL(job.ID),
		FileSize:    humanize.Bytes(uint64(size)),
		Path:        path,
		FileName:    fileName,
		ContentType: contentType,
	})
	return nil
}

// writeFile writes the report to path, removing it again on failure.
func writeFile(path string, t models.ExportType, compress bool, rep Report) (size int64, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640) //nolint:gosec // path built from job id
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close export file: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	buf := bufio.NewWriter(f)
	var w io.Writer = buf
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(buf)
		w = gz
	}

	if err := writeReport(w, t, rep); err != nil {
		return 0, fmt.Errorf("write %s export: %w", t, err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return 0, fmt.Errorf("compress export: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return 0, fmt.Errorf("flush export file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat export file: %w", err)
	}
	return info.Size(), nil
}

// ArtifactName is the download file name of a job's artifact.
func ArtifactName(job models.ExportJob) string {
	name := fmt.Sprintf("proxywatch-%s-%s.%s",
		job.DataType, job.CreatedAt.UTC().Format("20060102-150405"), job.Type.Extension())
	if job.Options.Compression {
		name += ".gz"
	}
	return name
}

// SelectProxies returns the inventory entries matching every set filter.
// Region and category compare case-insensitively. A proxy ID missing from the
// inventory is exported on its own when no other filter is set.
func SelectProxies(inventory []models.Proxy, f models.ExportFilters) []models.Proxy {
	var out []models.Proxy
	for _, p := range inventory {
		if f.ProxyID != "" && p.ID != f.ProxyID {
			continue
		}
		if f.Region != "" && !strings.EqualFold(p.Region, f.Region) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 && f.ProxyID != "" && f.Region == "" && f.Category == "" {
		out = append(out, models.Proxy{ID: f.ProxyID})
	}
	return out
}
