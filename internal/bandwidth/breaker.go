// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package bandwidth

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

// BreakerFetcher wraps a Fetcher with a circuit breaker so an unavailable
// metrics API fails fast instead of stalling every poller.
//
// Configuration:
//   - 3 probe requests in half-open state
//   - counts reset every minute while closed
//   - 2 minutes open before probing
//   - trips at >= 60% failures over at least 10 requests
type BreakerFetcher struct {
	next Fetcher
	cb   *gobreaker.CircuitBreaker[[]models.BandwidthSample]
	name string
}

// NewBreakerFetcher wraps next with a circuit breaker named name.
func NewBreakerFetcher(name string, next Fetcher) *BreakerFetcher {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]models.BandwidthSample](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= 0.6 {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
				return true
			}
			return false
		},
		// Cancellation by a superseding poll is not an upstream failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerFetcher{next: next, cb: cb, name: name}
}

// FetchBandwidth implements Fetcher.
func (f *BreakerFetcher) FetchBandwidth(ctx context.Context, proxyID string, r models.TimeRange, b Bucket) ([]models.BandwidthSample, error) {
	samples, err := f.cb.Execute(func() ([]models.BandwidthSample, error) {
		return f.next.FetchBandwidth(ctx, proxyID, r, b)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(f.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(f.name, "failure").Inc()
			metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(f.name).Set(float64(f.cb.Counts().ConsecutiveFailures))
		}
		return nil, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(f.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(f.name).Set(0)
	return samples, nil
}

// State returns the breaker state name.
func (f *BreakerFetcher) State() string {
	return stateToString(f.cb.State())
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
