// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

// Package poller keeps bandwidth series fresh for (proxy, range) pairs.
//
// A Poller fetches immediately when started or re-parameterized, then every
// Interval through an injected Scheduler. At most one fetch is in flight per
// poller: timer ticks that land during a fetch are skipped, while parameter
// changes and Refresh supersede the in-flight fetch by bumping a generation
// counter and cancelling its context. Results from a superseded or stopped
// generation are dropped, so no callback mutates state after Stop.
//
// Refresh does not reset the timer phase.
//
// The Registry shares pollers between API requests and WebSocket subscribers,
// ref-counting them and stopping idle ones after a TTL.
package poller

import (
	"sync"
	"time"
)

// DefaultInterval is the refresh period of a running poller.
const DefaultInterval = 30 * time.Second

// Scheduler runs fn every d until the returned stop function is called.
// After stop returns no new invocation starts.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// TickerScheduler is the time.Ticker backed Scheduler.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
