// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package middleware holds the HTTP middleware shared by the API router:
// request IDs, security headers and Prometheus instrumentation.
//
// Every middleware has the chi signature func(http.Handler) http.Handler so it
// can be passed straight to Router.Use.
package middleware
