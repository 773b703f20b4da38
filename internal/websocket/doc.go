// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package websocket pushes live bandwidth snapshots and export job updates to
// browser clients.
//
// Each connection owns a time range selector and a set of proxy
// subscriptions. A subscription holds a reference on the shared poller for
// (proxy, range) in the poller registry, so many dashboards watching the same
// proxy share one upstream poll. Changing the client's range moves every
// subscription to the new range.
//
// Client messages:
//
//	{"type":"subscribe","proxyId":"edge-1"}
//	{"type":"subscribe","proxyId":"edge-1","range":"7d"}
//	{"type":"set_range","range":"custom","start":"2024-01-01","end":"2024-01-10"}
//	{"type":"set_range","quickFilter":"last_week"}
//	{"type":"unsubscribe","proxyId":"edge-1"}
//	{"type":"ping"}
//
// Server messages carry a type and data: bandwidth_snapshot (poller.Snapshot),
// export_job (eventbus.JobEvent), range_changed (models.TimeRange), error and
// pong.
package websocket
