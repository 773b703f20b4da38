// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Placeholder is shown for values that cannot be formatted.
const Placeholder = "—"

// FormatBytes renders n in SI units ("2.1 MB"). Negative values render as the
// placeholder.
func FormatBytes(n int64) string {
	if n < 0 {
		return Placeholder
	}
	return humanize.Bytes(uint64(n))
}

// FormatLastUpdated renders t relative to now ("12 seconds ago").
// A zero time renders as the placeholder.
func FormatLastUpdated(t, now time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	if now.Sub(t) < time.Second && t.Sub(now) < time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Mbps converts bytes moved over interval to megabits per second.
func Mbps(bytes int64, interval time.Duration) float64 {
	if interval <= 0 || bytes <= 0 {
		return 0
	}
	return float64(bytes) * 8 / interval.Seconds() / 1e6
}

// Gigabytes converts bytes to decimal gigabytes.
func Gigabytes(bytes int64) float64 {
	return float64(bytes) / 1e9
}
