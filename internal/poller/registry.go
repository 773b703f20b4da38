// Proxywatch - Streaming Proxy Bandwidth Monitoring and Analytics Export
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/proxywatch

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/proxywatch/internal/logging"
	"github.com/tomtom215/proxywatch/internal/metrics"
	"github.com/tomtom215/proxywatch/internal/models"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Poller        Config
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

type entry struct {
	poller    *Poller
	refs      int
	idleSince time.Time
}

// Registry shares running pollers keyed by proxy and range.
type Registry struct {
	source DataSource
	cfg    RegistryConfig

	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry(source DataSource, cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Poller.Now == nil {
		cfg.Poller.Now = time.Now
	}
	return &Registry{
		source:  source,
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

func registryKey(proxyID string, r models.TimeRange) string {
	return proxyID + "|" + r.Key()
}

// Acquire returns the running poller for (proxyID, r), starting one if needed.
// The returned release function is idempotent.
func (reg *Registry) Acquire(proxyID string, r models.TimeRange) (*Poller, func()) {
	key := registryKey(proxyID, r)

	reg.mu.Lock()
	e, ok := reg.entries[key]
	if !ok {
		e = &entry{poller: New(reg.source, reg.cfg.Poller)}
		reg.entries[key] = e
		metrics.PollersActive.Set(float64(len(reg.entries)))
	}
	e.refs++
	p := e.poller
	reg.mu.Unlock()

	if !ok {
		logging.Debug().Str("proxy_id", proxyID).Str("range", r.Key()).Msg("Starting bandwidth poller")
		p.Start(proxyID, r)
	}

	var once sync.Once
	return p, func() {
		once.Do(func() { reg.release(key, e) })
	}
}

func (reg *Registry) release(key string, e *entry) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.entries[key] != e {
		return
	}
	e.refs--
	if e.refs <= 0 {
		e.refs = 0
		e.idleSince = reg.cfg.Poller.Now()
	}
}

// Lookup returns the poller for (proxyID, r) without taking a reference.
func (reg *Registry) Lookup(proxyID string, r models.TimeRange) (*Poller, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	e, ok := reg.entries[registryKey(proxyID, r)]
	if !ok {
		return nil, false
	}
	return e.poller, true
}

// Len returns the number of registered pollers.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.entries)
}

// Sweep stops and removes pollers unreferenced for longer than the idle TTL.
// It returns how many were removed.
func (reg *Registry) Sweep(now time.Time) int {
	reg.mu.Lock()
	var idle []*Poller
	for key, e := range reg.entries {
		if e.refs == 0 && now.Sub(e.idleSince) >= reg.cfg.IdleTTL {
			idle = append(idle, e.poller)
			delete(reg.entries, key)
		}
	}
	metrics.PollersActive.Set(float64(len(reg.entries)))
	reg.mu.Unlock()

	for _, p := range idle {
		p.Stop()
	}
	if len(idle) > 0 {
		logging.Debug().Int("count", len(idle)).Msg("Stopped idle bandwidth pollers")
	}
	return len(idle)
}

// StopAll stops and removes every poller.
func (reg *Registry) StopAll() {
	reg.mu.Lock()
	all := make([]*Poller, 0, len(reg.entries))
	for key, e := range reg.entries {
		all = append(all, e.poller)
		delete(reg.entries, key)
	}
	metrics.PollersActive.Set(0)
	reg.mu.Unlock()

	for _, p := range all {
		p.Stop()
	}
}

// Serve runs the idle sweeper until ctx ends, then stops every poller.
// It implements suture.Service.
func (reg *Registry) Serve(ctx context.Context) error {
	ticker := time.NewTicker(reg.cfg.SweepInterval)
	defer ticker.Stop()
	defer reg.StopAll()

	logging.Info().
		Dur("idle_ttl", reg.cfg.IdleTTL).
		Dur("sweep_interval", reg.cfg.SweepInterval).
		Msg("Poller registry sweeper started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reg.Sweep(reg.cfg.Poller.Now())
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (reg *Registry) String() string {
	return "poller-registry"
}
