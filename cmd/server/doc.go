// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

/*
Package main is the entry point for the proxywatch server.

proxywatch polls per-proxy bandwidth series from an upstream metrics API,
pushes live snapshots to dashboards over WebSocket, renders bandwidth charts
and produces CSV, JSON, PDF and Excel analytics exports.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("proxywatch")
	├── DataSupervisor ("data-layer")
	│   ├── Export watchdog (fails stalled jobs)
	│   └── Poller registry sweeper (stops idle pollers)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub
	│   └── Export job forwarder (event bus to WebSocket)
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment
 2. Logging: zerolog with JSON/console output modes
 3. Bandwidth source: metrics API client with retry and circuit breaker
 4. Poller registry: one poller per (proxy, range), shared by all viewers
 5. Event bus: Watermill gochannel, or NATS with -tags nats
 6. Export manager: memory or BadgerDB job store, local file backend
 7. WebSocket hub and job forwarder
 8. Supervisor tree and HTTP server

# Configuration

Common environment variables:

	HTTP_PORT=8480
	METRICS_API_URL=http://metrics.internal:9000
	BANDWIDTH_POLL_INTERVAL=30s
	BANDWIDTH_FALLBACK=auto        # auto, on or off
	EXPORT_OUTPUT_DIR=/var/lib/proxywatch/exports
	EXPORT_STORE=badger
	EVENTS_BACKEND=memory          # memory or nats
	PROXIES=edge-1:Edge One:eu-west:live:0.05

Without METRICS_API_URL every fetch fails. Outside production the source then
serves deterministic synthetic series, flagged as fallback.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains in-flight
requests, WebSocket clients are closed, pollers stop, running exports are
cancelled and the job store is closed.
*/
package main
