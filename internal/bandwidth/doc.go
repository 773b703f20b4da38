// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package bandwidth fetches per-proxy bandwidth series from the metrics API and
// synthesizes deterministic placeholder series when the API is unavailable and
// fallback is allowed.
//
// Components:
//   - Generate: seeded pseudo-random values in [0,1)
//   - BucketsFor: sample count and spacing per time range
//   - Client: HTTP metrics API client with retry
//   - BreakerFetcher: circuit breaker around any Fetcher
//   - Source: live fetch with optional synthetic fallback
package bandwidth
