// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"

	"github.com/tomtom215/proxywatch/internal/config"
	"github.com/tomtom215/proxywatch/internal/models"
)

// maxResponseBytes caps how much of a metrics API response is read.
const maxResponseBytes = 8 << 20

// Client talks to the metrics API:
//
//	GET {base}/api/proxies/{id}/bandwidth?timeRange=24h
//	GET {base}/api/proxies/{id}/bandwidth?timeRange=custom&start=2024-01-01&end=2024-01-10
//
// The response is either a JSON array of samples or {"samples": [...]}.
// Network errors, HTTP 429 and 5xx responses are retried with exponential backoff.
type Client struct {
	baseURL        string
	client         *http.Client
	maxRetries     uint64
	retryBaseDelay time.Duration
}

// NewClient creates a metrics API client from configuration.
func NewClient(cfg *config.MetricsAPIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := cfg.RetryBaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		client:         &http.Client{Timeout: timeout},
		maxRetries:     uint64(maxRetries),
		retryBaseDelay: base,
	}
}

// FetchBandwidth implements Fetcher.
func (c *Client) FetchBandwidth(ctx context.Context, proxyID string, r models.TimeRange, _ Bucket) ([]models.BandwidthSample, error) {
	reqURL := c.bandwidthURL(proxyID, r)

	b := retry.NewExponential(c.retryBaseDelay)
	b = retry.WithMaxRetries(c.maxRetries, b)
	b = retry.WithCappedDuration(5*time.Second, b)

	var samples []models.BandwidthSample
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		var doErr error
		samples, doErr = c.do(ctx, reqURL)
		return doErr
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

func (c *Client) bandwidthURL(proxyID string, r models.TimeRange) string {
	q := url.Values{}
	token := r.Token
	if token == "" {
		token = models.DefaultRange
	}
	q.Set("timeRange", string(token))
	if token == models.RangeCustom && r.Custom != nil {
		q.Set("start", r.Custom.Start)
		q.Set("end", r.Custom.End)
	}
	return fmt.Sprintf("%s/api/proxies/%s/bandwidth?%s", c.baseURL, url.PathEscape(proxyID), q.Encode())
}

// do performs one attempt. Retryable failures are wrapped with retry.RetryableError.
func (c *Client) do(ctx context.Context, reqURL string) ([]models.BandwidthSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.RetryableError(fmt.Errorf("metrics API returned HTTP %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("metrics API returned HTTP %d", resp.StatusCode)
	}

	return decodeSamples(body)
}

func decodeSamples(body []byte) ([]models.BandwidthSample, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decode bandwidth response: empty body")
	}

	if trimmed[0] == '{' {
		var envelope struct {
			Samples []models.BandwidthSample `json:"samples"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("decode bandwidth response: %w", err)
		}
		if envelope.Samples == nil {
			return nil, fmt.Errorf("decode bandwidth response: missing samples")
		}
		return envelope.Samples, nil
	}

	var samples []models.BandwidthSample
	if err := json.Unmarshal(trimmed, &samples); err != nil {
		return nil, fmt.Errorf("decode bandwidth response: %w", err)
	}
	return samples, nil
}
