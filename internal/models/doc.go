// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package models holds the data types shared by the bandwidth poller, the chart
// renderer, the time range selector and the export pipeline.
//
// JSON field names are camelCase to match the metrics API wire format.
package models
