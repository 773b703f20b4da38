// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package models

import "time"

// BandwidthSample is a single (timestamp, bytes) data point.
// A series is ordered by strictly ascending Timestamp and is never mutated after
// it is produced.
type BandwidthSample struct {
	Timestamp        int64 `json:"timestamp"` // epoch milliseconds
	BytesTransferred int64 `json:"bytesTransferred"`
}

// Time returns the sample timestamp as a UTC time.Time.
func (s BandwidthSample) Time() time.Time {
	return time.UnixMilli(s.Timestamp).UTC()
}

// BandwidthStats are the derived metrics of a series.
type BandwidthStats struct {
	Total   int64   `json:"total"`
	Average float64 `json:"average"`
	Peak    int64   `json:"peak"`
	Count   int     `json:"count"`
}

// ComputeStats returns total, average and peak for samples.
// Average and Peak are 0 for an empty series.
func ComputeStats(samples []BandwidthSample) BandwidthStats {
	stats := BandwidthStats{Count: len(samples)}
	for _, s := range samples {
		stats.Total += s.BytesTransferred
		if s.BytesTransferred > stats.Peak {
			stats.Peak = s.BytesTransferred
		}
	}
	if stats.Count > 0 {
		stats.Average = float64(stats.Total) / float64(stats.Count)
	}
	return stats
}

// Proxy is a configured streaming proxy that can be monitored and exported.
type Proxy struct {
	ID        string  `json:"id" koanf:"id" validate:"required"`
	Name      string  `json:"name" koanf:"name"`
	Region    string  `json:"region,omitempty" koanf:"region"`
	Category  string  `json:"category,omitempty" koanf:"category"`
	CostPerGB float64 `json:"costPerGb" koanf:"cost_per_gb" validate:"gte=0"`
}
