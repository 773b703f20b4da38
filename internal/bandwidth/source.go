// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

// SyntheticScale is the upper bound (exclusive) of synthetic byte counts.
const SyntheticScale = 1_000_000_000

// ErrNoFetcher is returned when no metrics API is configured.
var ErrNoFetcher = errors.New("metrics API not configured")

// Fetcher retrieves a live series from the metrics API.
type Fetcher interface {
	FetchBandwidth(ctx context.Context, proxyID string, r models.TimeRange, b Bucket) ([]models.BandwidthSample, error)
}

// FetchError reports that live metrics were unavailable and no fallback was
// permitted.
type FetchError struct {
	ProxyID string
	Range   string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("bandwidth data for proxy %q (%s) is unavailable: %v", e.ProxyID, e.Range, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is one fetched series. Fallback marks synthetic data that must be
// shown as estimated.
type Result struct {
	Samples  []models.BandwidthSample
	Fallback bool
	Interval time.Duration
}

// SourceConfig controls the data source.
type SourceConfig struct {
	// AllowFallback enables synthetic data when the live fetch fails.
	// Intended for development; production deployments leave it off.
	AllowFallback bool

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Source fetches bandwidth series for a proxy and time range.
type Source struct {
	fetcher       Fetcher
	allowFallback bool
	now           func() time.Time
}

// NewSource creates a Source. fetcher may be nil, in which case every fetch
// fails (and falls back when allowed).
func NewSource(fetcher Fetcher, cfg SourceConfig) *Source {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Source{fetcher: fetcher, allowFallback: cfg.AllowFallback, now: now}
}

// AllowsFallback reports whether synthetic data may be returned.
func (s *Source) AllowsFallback() bool {
	return s.allowFallback
}

// Fetch returns the series for proxyID over r. Live data is normalized to
// strictly ascending timestamps. On failure it returns synthetic data with
// Fallback set when permitted, otherwise a *FetchError. Invalid custom ranges
// and cancelled contexts are never masked by fallback.
func (s *Source) Fetch(ctx context.Context, proxyID string, r models.TimeRange) (Result, error) {
	start := time.Now()
	bucket, err := BucketsFor(r, s.now())
	if err != nil {
		metrics.RecordBandwidthFetch("error", time.Since(start))
		return Result{}, &FetchError{ProxyID: proxyID, Range: r.Key(), Err: err}
	}

	samples, err := s.fetchLive(ctx, proxyID, r, bucket)
	if err == nil {
		metrics.RecordBandwidthFetch("live", time.Since(start))
		return Result{Samples: samples, Interval: bucket.Interval}, nil
	}

	if ctx.Err() != nil || !s.allowFallback {
		metrics.RecordBandwidthFetch("error", time.Since(start))
		return Result{}, &FetchError{ProxyID: proxyID, Range: r.Key(), Err: err}
	}

	logging.Ctx(ctx).Warn().
		Err(err).
		Str("proxy_id", proxyID).
		Str("range", r.Key()).
		Msg("Metrics API unavailable, using estimated bandwidth data")
	metrics.RecordBandwidthFetch("fallback", time.Since(start))

	return Result{Samples: Synthesize(proxyID, bucket), Fallback: true, Interval: bucket.Interval}, nil
}

func (s *Source) fetchLive(ctx context.Context, proxyID string, r models.TimeRange, b Bucket) ([]models.BandwidthSample, error) {
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	raw, err := s.fetcher.FetchBandwidth(ctx, proxyID, r, b)
	if err != nil {
		return nil, err
	}
	return Normalize(raw)
}

// Synthesize builds the deterministic placeholder series for proxyID.
func Synthesize(proxyID string, b Bucket) []models.BandwidthSample {
	out := make([]models.BandwidthSample, b.Count)
	for i := range out {
		out[i] = models.BandwidthSample{
			Timestamp:        b.Timestamp(i),
			BytesTransferred: int64(math.Floor(Generate(proxyID, i) * SyntheticScale)),
		}
	}
	return out
}

// Normalize returns a sorted copy of samples with duplicate timestamps collapsed
// (last value wins). Negative byte counts are rejected.
func Normalize(samples []models.BandwidthSample) ([]models.BandwidthSample, error) {
	out := make([]models.BandwidthSample, len(samples))
	copy(out, samples)
	for _, s := range out {
		if s.BytesTransferred < 0 {
			return nil, fmt.Errorf("negative bytesTransferred %d at %d", s.BytesTransferred, s.Timestamp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	deduped := out[:0]
	for _, s := range out {
		if n := len(deduped); n > 0 && deduped[n-1].Timestamp == s.Timestamp {
			deduped[n-1] = s
			continue
		}
		deduped = append(deduped, s)
	}
	return deduped, nil
}
